package aggregator

import (
	"fmt"
	"sync"
	"time"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

// UpdateLog is a bounded ring of human-readable update lines, oldest first.
type UpdateLog struct {
	mu       sync.Mutex
	lines    []string
	next     int
	full     bool
	location *time.Location
	now      func() time.Time
}

// NewUpdateLog creates a ring holding up to capacity lines.
func NewUpdateLog(capacity int, tp *util.TimeProvider) *UpdateLog {
	if capacity <= 0 {
		capacity = constants.UpdateLogCapacity
	}
	if tp == nil {
		tp = util.GetTimeProvider()
	}
	return &UpdateLog{
		lines:    make([]string, capacity),
		location: tp.Location(),
		now:      tp.Now,
	}
}

// Add appends "[h:mm:ss PM]: message", overwriting the oldest line when full.
func (l *UpdateLog) Add(message string) {
	line := fmt.Sprintf("[%s]: %s", l.now().In(l.location).Format("3:04:05 PM"), message)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
}

// AddPoints logs one line per point, skipping CSV points.
func (l *UpdateLog) AddPoints(points []model.Point) {
	for _, p := range points {
		if p.Provenance == model.ProvenanceCsv {
			continue
		}
		l.Add(DescribeUpdate(p, l.location))
	}
}

// Lines returns a copy of the buffered lines, oldest first.
func (l *UpdateLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		return append([]string(nil), l.lines[:l.next]...)
	}
	out := make([]string, 0, len(l.lines))
	out = append(out, l.lines[l.next:]...)
	return append(out, l.lines[:l.next]...)
}

// Clear drops every buffered line.
func (l *UpdateLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.lines {
		l.lines[i] = ""
	}
	l.next = 0
	l.full = false
}

// DescribeUpdate renders the update line for a newly merged point.
func DescribeUpdate(p model.Point, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	ts := p.Timestamp.In(loc)
	switch p.Kind {
	case model.KindRegister:
		function := ""
		index := 0
		if p.Register != nil {
			function = p.Register.FunctionName
			index = p.Register.Index
		}
		return fmt.Sprintf("Modbus - Register %d - %s: %s (%s)",
			index, function, util.FormatValue(p.Value), ts.Format("1/2/2006, 3:04:05 PM"))
	case model.KindSlider:
		return fmt.Sprintf("Slider update from %s - Value: %s", ts.Format("3:04:05 PM"), util.FormatValue(p.Value))
	default:
		return fmt.Sprintf("Unknown update - Value: %s", util.FormatValue(p.Value))
	}
}
