// Package fixtures writes telemetry files for tests: register and slider
// blobs, CSV exports and EDF recordings.
package fixtures

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// RegisterRecord is one register reading in the pod's RDF shape.
type RegisterRecord struct {
	ID       int
	Value    int
	Register int
	Function string
	Accessed time.Time
}

// SliderLine is one "[clock]: value" line.
type SliderLine struct {
	Clock string
	Value string
}

// CSVRow is one row of a CSV export.
type CSVRow struct {
	Timestamp time.Time
	DeviceID  string
	DataType  string
	Register  string
	Value     float64
	Function  string
}

// Signal describes one EDF channel; Samples are digital values per record.
type Signal struct {
	Label            string
	PhysMin, PhysMax float64
	DigMin, DigMax   int
	Samples          [][]int16
}

// TestDataGenerator writes fixture files under a base directory
type TestDataGenerator struct {
	baseDir string
}

// NewTestDataGenerator creates a new test data generator
func NewTestDataGenerator(baseDir string) *TestDataGenerator {
	return &TestDataGenerator{baseDir: baseDir}
}

// GetBaseDir returns the base directory
func (g *TestDataGenerator) GetBaseDir() string {
	return g.baseDir
}

// RegisterBlob renders records as RDF, with prefixes.
func RegisterBlob(records []RegisterRecord) string {
	var b strings.Builder
	b.WriteString("@prefix ns1: <https://example.org/modbus#> .\n\n")
	for _, r := range records {
		function := r.Function
		if function == "" {
			function = "Potentiometer1"
		}
		fmt.Fprintf(&b, "<https://pod.example/data#r%d> ns1:value %d ;\n", r.ID, r.Value)
		fmt.Fprintf(&b, "    ns1:register %d ;\n", r.Register)
		fmt.Fprintf(&b, "    ns1:function %q ;\n", function)
		fmt.Fprintf(&b, "    ns1:accessed %d .\n\n", r.Accessed.Unix())
	}
	return b.String()
}

// SliderBlob renders lines in the slider text format.
func SliderBlob(lines []SliderLine) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "[%s]: %s\n", l.Clock, l.Value)
	}
	return b.String()
}

// GenerateRegisterBlob writes a register resource file.
func (g *TestDataGenerator) GenerateRegisterBlob(name string, records []RegisterRecord) (string, error) {
	return g.write(name, []byte(RegisterBlob(records)))
}

// GenerateSliderBlob writes a slider resource file.
func (g *TestDataGenerator) GenerateSliderBlob(name string, lines []SliderLine) (string, error) {
	return g.write(name, []byte(SliderBlob(lines)))
}

// GenerateCSV writes a CSV export with its header row; names ending in .gz
// are gzip-compressed.
func (g *TestDataGenerator) GenerateCSV(name string, rows []CSVRow) (string, error) {
	var b bytes.Buffer
	b.WriteString("timestamp,deviceId,dataType,register,value,function\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%g,%s\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.DeviceID, r.DataType, r.Register, r.Value, r.Function)
	}

	if !strings.HasSuffix(name, ".gz") {
		return g.write(name, b.Bytes())
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(b.Bytes()); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return g.write(name, gz.Bytes())
}

// GenerateEDF writes an EDF recording. Every signal must have the same number
// of records; samples per record are taken from the first record.
func (g *TestDataGenerator) GenerateEDF(name string, recordDuration float64, signals []Signal) (string, error) {
	if len(signals) == 0 {
		return "", fmt.Errorf("no signals")
	}
	numRecords := len(signals[0].Samples)
	for _, s := range signals {
		if len(s.Samples) != numRecords {
			return "", fmt.Errorf("signal %s has %d records, want %d", s.Label, len(s.Samples), numRecords)
		}
	}

	var buf bytes.Buffer
	ns := len(signals)
	field := func(s string, width int) {
		fmt.Fprintf(&buf, "%-*s", width, s)
	}
	field("0", 8)
	field("fixture", 80)
	field("fixture recording", 80)
	field("01.01.24", 8)
	field("00.00.00", 8)
	field(fmt.Sprint(256*(ns+1)), 8)
	field("", 44)
	field(fmt.Sprint(numRecords), 8)
	field(fmt.Sprint(recordDuration), 8)
	field(fmt.Sprint(ns), 4)

	each := func(width int, value func(s Signal) string) {
		for _, s := range signals {
			field(value(s), width)
		}
	}
	each(16, func(s Signal) string { return s.Label })
	each(80, func(Signal) string { return "" })
	each(8, func(Signal) string { return "uV" })
	each(8, func(s Signal) string { return fmt.Sprint(s.PhysMin) })
	each(8, func(s Signal) string { return fmt.Sprint(s.PhysMax) })
	each(8, func(s Signal) string { return fmt.Sprint(s.DigMin) })
	each(8, func(s Signal) string { return fmt.Sprint(s.DigMax) })
	each(80, func(Signal) string { return "" })
	each(8, func(s Signal) string {
		if numRecords == 0 {
			return "0"
		}
		return fmt.Sprint(len(s.Samples[0]))
	})
	each(32, func(Signal) string { return "" })

	for r := 0; r < numRecords; r++ {
		for _, s := range signals {
			if err := binary.Write(&buf, binary.LittleEndian, s.Samples[r]); err != nil {
				return "", err
			}
		}
	}
	return g.write(name, buf.Bytes())
}

func (g *TestDataGenerator) write(name string, data []byte) (string, error) {
	path := filepath.Join(g.baseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// CleanupTestData removes all test data
func (g *TestDataGenerator) CleanupTestData() error {
	return os.RemoveAll(g.baseDir)
}
