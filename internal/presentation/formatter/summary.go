package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/podscope/internal/core/model"
)

// SummaryFormatter prints counts instead of points.
type SummaryFormatter struct {
	out io.Writer
}

// NewSummaryFormatter creates a SummaryFormatter writing to w.
func NewSummaryFormatter(w io.Writer) *SummaryFormatter {
	return &SummaryFormatter{out: w}
}

// Format prints totals by kind and provenance, the CSV counters and the size
// and time span of each group.
func (f *SummaryFormatter) Format(report Report) error {
	w := f.out
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Telemetry Summary Report")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	if report.Summary.Total == 0 && report.CSV.Total == 0 {
		fmt.Fprintln(w, "No data to summarize")
		fmt.Fprintln(w)
		fmt.Fprintln(w, rule)
		return nil
	}

	fmt.Fprintf(w, "Total Points: %d\n", report.Summary.Total)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "By Kind:")
	for _, k := range []model.Kind{model.KindRegister, model.KindSlider} {
		fmt.Fprintf(w, "  %-12s %d\n", k.String()+":", report.Summary.CountByKind[k])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "By Source:")
	for _, p := range model.Provenances {
		fmt.Fprintf(w, "  %-12s %d\n", p.Label()+":", report.Summary.CountByProvenance[p])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CSV Data:")
	fmt.Fprintf(w, "  Total: %d  Modbus: %d  Slider: %d  CSV: %d\n",
		report.CSV.Total, report.CSV.Modbus, report.CSV.Slider, report.CSV.CSV)

	if len(report.Groups) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Groups (%s):\n", report.Mode)
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, g := range report.Groups {
			if len(g.Points) == 0 {
				continue
			}
			first, last := g.Points[0], g.Points[len(g.Points)-1]
			fmt.Fprintf(w, "  %s: %d points, %s to %s\n", g.Key, len(g.Points), first.OriginalTime, last.OriginalTime)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	return nil
}
