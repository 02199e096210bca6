package formatter

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/penwyp/podscope/internal/util"
)

type CSVFormatter struct {
	out io.Writer
}

func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{out: w}
}

func (f *CSVFormatter) Format(report Report) error {
	w := csv.NewWriter(f.out)

	headers := []string{
		"group", "timestamp", "type", "name", "value",
		"deviceId", "source", "register", "sliderId", "function",
	}
	if err := w.Write(headers); err != nil {
		return err
	}

	for _, g := range report.Groups {
		for _, p := range g.Points {
			register := ""
			if p.Register != nil {
				register = strconv.Itoa(*p.Register)
			}
			record := []string{
				g.Key,
				p.FullTimestamp.UTC().Format(time.RFC3339),
				p.Type.String(),
				p.Name,
				util.FormatValue(p.Value),
				p.DeviceID,
				p.Source,
				register,
				p.SliderID,
				p.Function,
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}
