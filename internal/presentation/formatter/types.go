package formatter

import (
	"fmt"
	"io"
	"time"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
)

// Group is one chart series: a group key and its display points in time order.
type Group struct {
	Key    string               `json:"key"`
	Points []model.DisplayPoint `json:"points"`
}

// Report is everything a formatter renders.
type Report struct {
	Mode    model.GroupingMode `json:"mode"`
	Filter  model.KindFilter   `json:"type"`
	Groups  []Group            `json:"groups"`
	Summary model.Summary      `json:"summary"`
	CSV     model.CSVSummary   `json:"csv"`
}

// NewReport maps view for display in loc, ordering groups by key.
func NewReport(view model.GroupedView, mode model.GroupingMode, filter model.KindFilter, summary model.Summary, csv model.CSVSummary, loc *time.Location) Report {
	display := aggregator.ToDisplay(view, loc)
	groups := make([]Group, 0, len(display))
	for _, key := range view.Keys() {
		groups = append(groups, Group{Key: key, Points: display[key]})
	}
	return Report{Mode: mode, Filter: filter, Groups: groups, Summary: summary, CSV: csv}
}

// Points is the number of points across groups.
func (r Report) Points() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Points)
	}
	return n
}

// Formatter renders a Report.
type Formatter interface {
	Format(report Report) error
}

// New returns the formatter named by format, writing to w.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "", "table":
		return NewTableFormatter(w), nil
	case "json":
		return NewJSONFormatter(w), nil
	case "csv":
		return NewCSVFormatter(w), nil
	case "summary":
		return NewSummaryFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format '%s'", format)
	}
}

func pointDetail(p model.DisplayPoint) string {
	switch {
	case p.Register != nil && p.Function != "":
		return fmt.Sprintf("Register %d - %s", *p.Register, p.Function)
	case p.RawLine != "":
		return p.RawLine
	case p.SliderID != "":
		return "Slider " + p.SliderID
	default:
		return ""
	}
}
