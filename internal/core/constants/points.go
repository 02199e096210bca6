package constants

const (
	// RetentionCap is the maximum number of points kept in the live set.
	RetentionCap = 500

	// UnknownDeviceID is used wherever a point carries no device id.
	UnknownDeviceID = "unknown"

	// PodDeviceID is the device every register reading fetched from the pod belongs to.
	PodDeviceID = "esp-device"

	DefaultRegisterFunction = "Potentiometer1"
	DefaultRegisterType     = "Uint16"
	DefaultCSVFunction      = "READ_HOLDING_REGISTER"

	// TextSliderID identifies the single slider written in the text format.
	TextSliderID = "slider1"

	// CombinedGroupKey is the only bucket produced by the combined grouping mode.
	CombinedGroupKey = "All Data"

	// UpdateLogCapacity bounds the human-readable update log.
	UpdateLogCapacity = 200
)
