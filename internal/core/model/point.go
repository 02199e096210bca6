package model

import (
	"fmt"
	"time"

	"github.com/penwyp/podscope/internal/core/constants"
)

// Kind discriminates the two point variants.
type Kind int

const (
	KindRegister Kind = iota + 1
	KindSlider
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindSlider:
		return "slider"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindRegister && k != KindSlider {
		return nil, fmt.Errorf("invalid point kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts the canonical names and the "modbus" alias used by CSV files.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "register", "modbus":
		return KindRegister, nil
	case "slider":
		return KindSlider, nil
	default:
		return 0, fmt.Errorf("unknown point kind %q", s)
	}
}

// Provenance records which ingestion path produced a point.
type Provenance int

const (
	ProvenancePodLive Provenance = iota + 1
	ProvenanceCsv
	ProvenanceMqtt
)

var provenanceNames = map[Provenance]string{
	ProvenancePodLive: "solid-pod",
	ProvenanceCsv:     "csv",
	ProvenanceMqtt:    "mqtt",
}

var provenanceLabels = map[Provenance]string{
	ProvenancePodLive: "Solid Pod",
	ProvenanceCsv:     "CSV",
	ProvenanceMqtt:    "Message Bus",
}

// Provenances lists every provenance in display order.
var Provenances = []Provenance{ProvenancePodLive, ProvenanceCsv, ProvenanceMqtt}

func (p Provenance) String() string {
	if name, ok := provenanceNames[p]; ok {
		return name
	}
	return "unset"
}

// Label is the human-readable source name used in grouped views.
func (p Provenance) Label() string {
	if label, ok := provenanceLabels[p]; ok {
		return label
	}
	return "Unknown"
}

// Valid reports whether p is one of the three ingestion paths.
func (p Provenance) Valid() bool {
	_, ok := provenanceNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (p Provenance) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "unset" and the empty
// string decode to the zero provenance of a point not yet normalized.
func (p *Provenance) UnmarshalText(text []byte) error {
	if len(text) == 0 || string(text) == "unset" {
		*p = 0
		return nil
	}
	for candidate, name := range provenanceNames {
		if name == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown provenance %q", string(text))
}

// RegisterReading is the register-only part of a point.
type RegisterReading struct {
	Index        int    `json:"registerIndex"`
	FunctionName string `json:"functionName"`
	// AccessedUnixSeconds is the source of truth for the timestamp when set.
	AccessedUnixSeconds *int64 `json:"accessedUnixSeconds,omitempty"`
}

// SliderCommand is the slider-only part of a point.
type SliderCommand struct {
	SliderID string `json:"sliderId"`
	RawLine  string `json:"rawLine,omitempty"`
}

// Point is a normalized observation. Exactly one of Register or Slider is set,
// matching Kind; use the constructors to keep the two in sync.
type Point struct {
	Kind       Kind             `json:"kind"`
	Value      float64          `json:"value"`
	Timestamp  time.Time        `json:"timestamp"`
	DeviceID   string           `json:"deviceId,omitempty"`
	Provenance Provenance       `json:"provenance"`
	Register   *RegisterReading `json:"register,omitempty"`
	Slider     *SliderCommand   `json:"slider,omitempty"`
}

// NewRegisterPoint builds a register point whose timestamp is derived from accessed.
func NewRegisterPoint(value float64, index int, function string, accessed int64) Point {
	return Point{
		Kind:      KindRegister,
		Value:     value,
		Timestamp: time.Unix(accessed, 0),
		Register: &RegisterReading{
			Index:               index,
			FunctionName:        function,
			AccessedUnixSeconds: &accessed,
		},
	}
}

// NewSliderPoint builds a slider point.
func NewSliderPoint(value float64, ts time.Time, sliderID, rawLine string) Point {
	return Point{
		Kind:      KindSlider,
		Value:     value,
		Timestamp: ts,
		Slider: &SliderCommand{
			SliderID: sliderID,
			RawLine:  rawLine,
		},
	}
}

// Device returns the device id, or the sentinel when none is set.
func (p Point) Device() string {
	if p.DeviceID == "" {
		return constants.UnknownDeviceID
	}
	return p.DeviceID
}

// DedupKey identifies an observation regardless of which fetch produced it.
type DedupKey struct {
	Kind       Kind
	Second     int64
	Value      float64
	Provenance Provenance
}

// Key returns the dedup key: kind, timestamp truncated to the second, value and provenance.
func (p Point) Key() DedupKey {
	return DedupKey{
		Kind:       p.Kind,
		Second:     p.Timestamp.Unix(),
		Value:      p.Value,
		Provenance: p.Provenance,
	}
}

// DisplayName is the series label shown next to the value ("Register 3", "Slider slider1").
func (p Point) DisplayName() string {
	switch p.Kind {
	case KindRegister:
		if p.Register == nil {
			return "Register ?"
		}
		return fmt.Sprintf("Register %d", p.Register.Index)
	case KindSlider:
		if p.Slider == nil {
			return "Slider ?"
		}
		return "Slider " + p.Slider.SliderID
	default:
		return "Unknown"
	}
}

// Detail describes the variant-specific part of the point for logs and tooltips.
func (p Point) Detail() string {
	switch p.Kind {
	case KindRegister:
		if p.Register == nil {
			return "Register"
		}
		return fmt.Sprintf("Register %d - %s", p.Register.Index, p.Register.FunctionName)
	case KindSlider:
		if p.Slider == nil {
			return "Slider"
		}
		return "Slider " + p.Slider.SliderID
	default:
		return ""
	}
}

// Validate checks that the variant payload matches the discriminant.
func (p Point) Validate() error {
	switch p.Kind {
	case KindRegister:
		if p.Register == nil || p.Slider != nil {
			return fmt.Errorf("register point must carry only register data")
		}
	case KindSlider:
		if p.Slider == nil || p.Register != nil {
			return fmt.Errorf("slider point must carry only slider data")
		}
	default:
		return fmt.Errorf("invalid point kind %d", int(p.Kind))
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("point has no timestamp")
	}
	return nil
}
