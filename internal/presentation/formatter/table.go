package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/penwyp/podscope/internal/util"
)

type TableFormatter struct {
	out     io.Writer
	headers []string
	// maxWidth bounds the whole table; the Detail column absorbs the squeeze.
	maxWidth int
}

func NewTableFormatter(w io.Writer) *TableFormatter {
	maxWidth := 0
	if w == os.Stdout {
		maxWidth = util.TerminalWidth()
	}
	return &TableFormatter{
		out:      w,
		headers:  []string{"Group", "Time", "Name", "Value", "Source", "Detail"},
		maxWidth: maxWidth,
	}
}

// WithMaxWidth overrides the table width limit; zero disables it.
func (f *TableFormatter) WithMaxWidth(width int) *TableFormatter {
	f.maxWidth = width
	return f
}

func (f *TableFormatter) Format(report Report) error {
	rows := make([][][]string, len(report.Groups))
	for i, g := range report.Groups {
		for _, p := range g.Points {
			rows[i] = append(rows[i], []string{
				g.Key,
				p.OriginalTime,
				p.Name,
				util.FormatValue(p.Value),
				p.SourceLabel,
				pointDetail(p),
			})
		}
	}
	total := []string{"Total", "", fmt.Sprintf("%d points", report.Points()), "", "", ""}

	widths := f.calculateColumnWidths(rows, total)

	f.printBorder(widths, "top")
	f.printRow(f.headers, widths)
	f.printBorder(widths, "middle")

	for i, group := range rows {
		for j, row := range group {
			if j > 0 {
				// Group name only on the first row of each group.
				row[0] = ""
			}
			f.printRow(row, widths)
		}
		if i < len(rows)-1 && len(group) > 0 {
			f.printBorder(widths, "middle")
		}
	}

	f.printBorder(widths, "middle")
	f.printRow(total, widths)
	f.printBorder(widths, "bottom")
	return nil
}

// calculateColumnWidths sizes each column to its content, then shrinks the
// Detail column to fit maxWidth.
func (f *TableFormatter) calculateColumnWidths(rows [][][]string, total []string) []int {
	widths := make([]int, len(f.headers))
	measure := func(values []string) {
		for i, v := range values {
			if w := util.GetDisplayWidth(v); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(f.headers)
	for _, group := range rows {
		for _, row := range group {
			measure(row)
		}
	}
	measure(total)

	for i := range widths {
		if widths[i] < 5 {
			widths[i] = 5
		}
	}

	if f.maxWidth > 0 {
		// Each column costs its width plus three border/padding columns.
		used := 1
		for _, w := range widths {
			used += w + 3
		}
		last := len(widths) - 1
		if over := used - f.maxWidth; over > 0 {
			widths[last] = max(widths[last]-over, 8)
		}
	}
	return widths
}

func (f *TableFormatter) printBorder(widths []int, borderType string) {
	var left, middle, right string
	switch borderType {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	case "bottom":
		left, middle, right = "└", "┴", "┘"
	}

	var b strings.Builder
	b.WriteString(left)
	for i, width := range widths {
		b.WriteString(strings.Repeat("─", width+2))
		if i < len(widths)-1 {
			b.WriteString(middle)
		}
	}
	b.WriteString(right)
	fmt.Fprintln(f.out, b.String())
}

// printRow left-aligns text columns and right-aligns the Value column.
func (f *TableFormatter) printRow(values []string, widths []int) {
	var b strings.Builder
	b.WriteString("│")
	for i, value := range values {
		value = util.TruncateToWidth(value, widths[i])
		if i == 3 {
			b.WriteString(" " + strings.Repeat(" ", widths[i]-util.GetDisplayWidth(value)) + value + " │")
		} else {
			b.WriteString(" " + util.PadRight(value, widths[i]) + " │")
		}
	}
	fmt.Fprintln(f.out, b.String())
}
