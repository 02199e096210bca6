package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

var (
	sliderLinePattern = regexp.MustCompile(`\[([^\]]+)\]:\s*(.+)`)
	decimalPattern    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	twelveHourPattern = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2}):(\d{2})\s*(AM|PM)$`)
)

// DayAnchor decides which calendar day a bare clock time belongs to.
type DayAnchor int

const (
	// AnchorToday places every bare clock time on the current date, even when
	// that puts it in the future (entries written before midnight and read
	// after it land a day late).
	AnchorToday DayAnchor = iota
	// AnchorMostRecent moves a clock time that would be in the future back one day.
	AnchorMostRecent
)

// ParseDayAnchor maps a config value to a DayAnchor.
func ParseDayAnchor(s string) DayAnchor {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "most-recent", "most_recent", "recent":
		return AnchorMostRecent
	default:
		return AnchorToday
	}
}

// Layouts tried for bracket content that is not a 12-hour clock.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006 3:04:05 PM",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.UnixDate,
}

// Clock-only layouts are combined with the anchored calendar day.
var clockLayouts = []string{
	"15:04:05",
	"15:04",
}

// ParseSlider converts "[<time>]: <text>" lines into slider points. Lines without a
// bracket prefix or without a number after it are skipped.
func (p *Parser) ParseSlider(blob string) []model.Point {
	var points []model.Point
	for i, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		m := sliderLinePattern.FindStringSubmatch(line)
		if m == nil {
			util.LogDebug("Skip line without timestamp prefix", util.F("line", i+1))
			continue
		}

		numeric := decimalPattern.FindString(m[2])
		if numeric == "" {
			util.LogWarn("Skip slider line without a value", util.F("line", i+1), util.F("text", m[2]))
			continue
		}
		value, err := strconv.ParseFloat(numeric, 64)
		if err != nil {
			util.LogWarn("Skip slider line with unparseable value", util.F("line", i+1), util.F("error", err))
			continue
		}

		points = append(points, model.NewSliderPoint(value, p.sliderTimestamp(m[1]), constants.TextSliderID, line))
	}
	return points
}

func (p *Parser) sliderTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	now := p.timeProvider.Now()
	loc := p.timeProvider.Location()

	if ts, ok := parseTwelveHour(raw); ok {
		return p.anchorClock(now, ts.hour, ts.minute, ts.second)
	}

	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return p.anchorClock(now, t.Hour(), t.Minute(), t.Second())
		}
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t
		}
	}

	util.LogDebug("Slider timestamp not recognised, using parse time", util.F("raw", raw))
	return now
}

func (p *Parser) anchorClock(now time.Time, hour, minute, second int) time.Time {
	y, mo, d := now.Date()
	t := time.Date(y, mo, d, hour, minute, second, 0, now.Location())
	if p.dayAnchor == AnchorMostRecent && t.After(now) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

type clockTime struct {
	hour, minute, second int
}

// parseTwelveHour converts "H:MM:SS AM|PM" to 24-hour components.
func parseTwelveHour(raw string) (clockTime, bool) {
	m := twelveHourPattern.FindStringSubmatch(raw)
	if m == nil {
		return clockTime{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])
	if hour < 1 || hour > 12 || minute > 59 || second > 59 {
		return clockTime{}, false
	}

	pm := strings.EqualFold(m[4], "PM")
	switch {
	case pm && hour < 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	return clockTime{hour: hour, minute: minute, second: second}, true
}

// FormatSliderClock renders t the way slider lines stamp their entries ("2:15:30 PM").
func FormatSliderClock(t time.Time) string {
	return t.Format("3:04:05 PM")
}

// AppendSliderCommand returns current with a new "[h:mm:ss PM]: text" line appended.
func AppendSliderCommand(current, text string, now time.Time) string {
	line := "[" + FormatSliderClock(now) + "]: " + text
	current = strings.TrimRight(current, "\n")
	if current == "" {
		return line
	}
	return current + "\n" + line
}
