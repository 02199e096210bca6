package model

import (
	"fmt"
	"sort"
	"time"
)

// GroupingMode selects how a point set is bucketed for display.
type GroupingMode string

const (
	GroupByDevice   GroupingMode = "device"
	GroupBySource   GroupingMode = "source"
	GroupByCombined GroupingMode = "combined"
)

// ParseGroupingMode validates a mode name; empty selects device.
func ParseGroupingMode(s string) (GroupingMode, error) {
	switch GroupingMode(s) {
	case "":
		return GroupByDevice, nil
	case GroupByDevice, GroupBySource, GroupByCombined:
		return GroupingMode(s), nil
	default:
		return "", fmt.Errorf("invalid grouping mode '%s': must be device, source or combined", s)
	}
}

// KindFilter restricts which point kinds a fetch or view returns.
type KindFilter string

const (
	FilterRegister KindFilter = "register"
	FilterSlider   KindFilter = "slider"
	FilterBoth     KindFilter = "both"
)

// ParseKindFilter validates a filter name; empty selects both.
func ParseKindFilter(s string) (KindFilter, error) {
	switch KindFilter(s) {
	case "":
		return FilterBoth, nil
	case FilterRegister, FilterSlider, FilterBoth:
		return KindFilter(s), nil
	case "modbus":
		return FilterRegister, nil
	default:
		return "", fmt.Errorf("invalid data type '%s': must be register, slider or both", s)
	}
}

// Allows reports whether points of kind k pass the filter.
func (f KindFilter) Allows(k Kind) bool {
	switch f {
	case FilterRegister:
		return k == KindRegister
	case FilterSlider:
		return k == KindSlider
	default:
		return true
	}
}

// GroupedView maps a group key to points sorted ascending by timestamp.
type GroupedView map[string][]Point

// Keys returns the group keys in lexical order.
func (v GroupedView) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of points across all groups.
func (v GroupedView) Len() int {
	n := 0
	for _, points := range v {
		n += len(points)
	}
	return n
}

// DisplayPoint is a point flattened for chart and table consumers.
type DisplayPoint struct {
	Time          string    `json:"time"`
	Value         float64   `json:"value"`
	Name          string    `json:"name"`
	Type          Kind      `json:"type"`
	DeviceID      string    `json:"deviceId"`
	Source        string    `json:"source"`
	SourceLabel   string    `json:"sourceLabel"`
	FullTimestamp time.Time `json:"fullTimestamp"`
	OriginalTime  string    `json:"originalTime"`
	Register      *int      `json:"register,omitempty"`
	SliderID      string    `json:"sliderId,omitempty"`
	Function      string    `json:"function,omitempty"`
	RawLine       string    `json:"rawLine,omitempty"`
}

// ToDisplay maps p for display, rendering times in loc.
func (p Point) ToDisplay(loc *time.Location) DisplayPoint {
	if loc == nil {
		loc = time.Local
	}
	local := p.Timestamp.In(loc)

	dp := DisplayPoint{
		Time:          local.Format("15:04:05"),
		Value:         p.Value,
		Name:          p.DisplayName(),
		Type:          p.Kind,
		DeviceID:      p.Device(),
		Source:        p.Provenance.String(),
		SourceLabel:   sourceTooltipLabel(p.Provenance),
		FullTimestamp: p.Timestamp,
		OriginalTime:  local.Format("2006-01-02 15:04:05"),
	}

	switch p.Kind {
	case KindRegister:
		if p.Register != nil {
			idx := p.Register.Index
			dp.Register = &idx
			dp.Function = p.Register.FunctionName
		}
	case KindSlider:
		if p.Slider != nil {
			dp.SliderID = p.Slider.SliderID
			dp.RawLine = p.Slider.RawLine
		}
	}
	return dp
}

func sourceTooltipLabel(p Provenance) string {
	switch p {
	case ProvenanceCsv:
		return "CSV Simulation"
	case ProvenanceMqtt:
		return "Message Bus"
	default:
		return "Solid Pod"
	}
}

// Summary is a read-only aggregate over a point set.
type Summary struct {
	Total             int                `json:"total"`
	CountByKind       map[Kind]int       `json:"countByKind"`
	CountByProvenance map[Provenance]int `json:"countByProvenance"`
}

// CSVSummary mirrors the counters shown for a loaded simulation file.
type CSVSummary struct {
	Total  int `json:"total"`
	Modbus int `json:"modbus"`
	Slider int `json:"slider"`
	CSV    int `json:"csv"`
}
