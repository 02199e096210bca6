// Package csvingest reads simulated device logs in the
// timestamp,deviceId,kind,registerOrSliderId,value,function CSV layout.
package csvingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

// ErrEmptyInput is returned when the input has no header line.
var ErrEmptyInput = errors.New("csv input is empty")

const minColumns = 6

var gzipMagic = []byte{0x1f, 0x8b}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Ingestor converts CSV text into CSV-provenance points.
type Ingestor struct {
	location *time.Location
}

// NewIngestor returns an Ingestor that reads zone-less timestamps in loc.
func NewIngestor(loc *time.Location) *Ingestor {
	if loc == nil {
		loc = time.Local
	}
	return &Ingestor{location: loc}
}

// Ingest parses r. The first line is a header and is always skipped; short lines,
// unknown kinds and unparseable timestamps are skipped with a warning.
func (in *Ingestor) Ingest(r io.Reader) ([]model.Point, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		return nil, ErrEmptyInput
	}

	var points []model.Point
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		point, ok := in.parseLine(line, lineNo)
		if ok {
			points = append(points, point)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	util.LogInfof("Loaded %d data points from CSV", len(points))
	return points, nil
}

// IngestFile parses a plain or gzip-compressed CSV file.
func (in *Ingestor) IngestFile(path string) ([]model.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	reader, closeFn, err := maybeDecompress(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer closeFn()

	points, err := in.Ingest(reader)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}
	return points, nil
}

// maybeDecompress sniffs the gzip magic so .csv.gz files and gzip request bodies
// are handled without relying on names or headers.
func maybeDecompress(br *bufio.Reader) (io.Reader, func(), error) {
	head, err := br.Peek(len(gzipMagic))
	if err != nil || !bytes.Equal(head, gzipMagic) {
		return br, func() {}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	return zr, func() { _ = zr.Close() }, nil
}

// IngestReader parses r, transparently decompressing gzip content.
func (in *Ingestor) IngestReader(r io.Reader) ([]model.Point, error) {
	reader, closeFn, err := maybeDecompress(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return in.Ingest(reader)
}

func (in *Ingestor) parseLine(line string, lineNo int) (model.Point, bool) {
	columns := strings.Split(line, ",")
	if len(columns) < minColumns {
		util.LogDebug("Skip incomplete CSV line", util.F("line", lineNo), util.F("columns", len(columns)))
		return model.Point{}, false
	}
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}
	tsText, deviceID, kind, idText, valueText, function := columns[0], columns[1], columns[2], columns[3], columns[4], columns[5]

	ts, err := in.parseTimestamp(tsText)
	if err != nil {
		util.LogWarn("Skip CSV line with invalid timestamp", util.F("line", lineNo), util.F("timestamp", tsText))
		return model.Point{}, false
	}
	value := parseNumberOrZero(valueText)

	var point model.Point
	switch kind {
	case "modbus":
		if function == "" {
			function = constants.DefaultCSVFunction
		}
		register, _ := strconv.Atoi(idText)
		point = model.NewRegisterPoint(value, register, function, ts.Unix())
		point.Timestamp = ts
	case "slider":
		sliderID := idText
		if sliderID == "" {
			sliderID = defaultSliderID(deviceID)
		}
		point = model.NewSliderPoint(value, ts, sliderID, function)
	default:
		util.LogWarnf("Unknown data type %q in CSV line %d", kind, lineNo)
		return model.Point{}, false
	}

	point.DeviceID = deviceID
	point.Provenance = model.ProvenanceCsv
	return point, true
}

func (in *Ingestor) parseTimestamp(text string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, text, in.location); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", text)
}

// parseNumberOrZero reads a numeric column; unreadable values count as zero.
func parseNumberOrZero(text string) float64 {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return v
}

// defaultSliderID derives "potentiometer_<suffix>" from the last dash-separated
// part of the device id.
func defaultSliderID(deviceID string) string {
	parts := strings.Split(deviceID, "-")
	return "potentiometer_" + parts[len(parts)-1]
}

// Summarize counts a CSV point set the way the loader reports it.
func Summarize(points []model.Point) model.CSVSummary {
	summary := model.CSVSummary{Total: len(points), CSV: len(points)}
	for _, p := range points {
		switch p.Kind {
		case model.KindRegister:
			summary.Modbus++
		case model.KindSlider:
			summary.Slider++
		}
	}
	return summary
}
