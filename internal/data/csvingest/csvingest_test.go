package csvingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/core/model"
)

const header = "timestamp,deviceId,dataType,register,value,function\n"

func TestIngestRegisterLine(t *testing.T) {
	in := NewIngestor(time.UTC)

	points, err := in.IngestReader(strings.NewReader(header + "2024-01-01T00:00:00Z,dev1,modbus,5,10,READ\n"))
	require.NoError(t, err)
	require.Len(t, points, 1)

	p := points[0]
	assert.Equal(t, model.KindRegister, p.Kind)
	assert.Equal(t, model.ProvenanceCsv, p.Provenance)
	assert.Equal(t, "dev1", p.DeviceID)
	assert.Equal(t, 10.0, p.Value)
	require.NotNil(t, p.Register)
	assert.Equal(t, 5, p.Register.Index)
	assert.Equal(t, "READ", p.Register.FunctionName)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(p.Timestamp))
}

func TestIngestLines(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		count  int
		verify func(t *testing.T, p model.Point)
	}{
		{
			name:  "register default function",
			line:  "2024-01-01T00:00:00Z,dev1,modbus,5,10,",
			count: 1,
			verify: func(t *testing.T, p model.Point) {
				assert.Equal(t, "READ_HOLDING_REGISTER", p.Register.FunctionName)
			},
		},
		{
			name:  "slider with id",
			line:  "2024-01-01T00:00:01Z,esp-device-3,slider,s9,55,moved",
			count: 1,
			verify: func(t *testing.T, p model.Point) {
				assert.Equal(t, model.KindSlider, p.Kind)
				assert.Equal(t, "s9", p.Slider.SliderID)
				assert.Equal(t, "moved", p.Slider.RawLine)
				assert.Equal(t, 55.0, p.Value)
			},
		},
		{
			name:  "slider id derived from device",
			line:  "2024-01-01T00:00:01Z,esp-device-3,slider,,55,",
			count: 1,
			verify: func(t *testing.T, p model.Point) {
				assert.Equal(t, "potentiometer_3", p.Slider.SliderID)
			},
		},
		{
			name:  "unparseable value reads as zero",
			line:  "2024-01-01T00:00:00Z,dev1,modbus,5,n/a,READ",
			count: 1,
			verify: func(t *testing.T, p model.Point) {
				assert.Equal(t, 0.0, p.Value)
			},
		},
		{name: "short line", line: "2024-01-01T00:00:00Z,dev1,modbus,5,10", count: 0},
		{name: "unknown kind", line: "2024-01-01T00:00:00Z,dev1,canbus,5,10,READ", count: 0},
		{name: "bad timestamp", line: "soon,dev1,modbus,5,10,READ", count: 0},
		{name: "blank line", line: "   ", count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := NewIngestor(time.UTC).IngestReader(strings.NewReader(header + tt.line + "\n"))
			require.NoError(t, err)
			require.Len(t, points, tt.count)
			if tt.verify != nil {
				tt.verify(t, points[0])
			}
		})
	}
}

func TestIngestSkipsHeaderOnly(t *testing.T) {
	points, err := NewIngestor(time.UTC).IngestReader(strings.NewReader("2024-01-01T00:00:00Z,dev1,modbus,5,10,READ\n"))
	require.NoError(t, err)
	assert.Empty(t, points, "first line is always treated as the header")
}

func TestIngestEmpty(t *testing.T) {
	_, err := NewIngestor(time.UTC).IngestReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestIngestZonelessTimestampUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	points, err := NewIngestor(loc).IngestReader(strings.NewReader(header + "2024-01-01 02:00:00,dev1,modbus,1,1,R\n"))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(points[0].Timestamp))
}

func TestIngestFileGzip(t *testing.T) {
	content := header +
		"2024-01-01T00:00:00Z,dev1,modbus,5,10,READ\r\n" +
		"2024-01-01T00:00:01Z,dev1,slider,s1,20,\r\n"

	dir := t.TempDir()
	plain := filepath.Join(dir, "sim.csv")
	require.NoError(t, os.WriteFile(plain, []byte(content), 0o644))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	compressed := filepath.Join(dir, "sim.csv.gz")
	require.NoError(t, os.WriteFile(compressed, buf.Bytes(), 0o644))

	in := NewIngestor(time.UTC)
	fromPlain, err := in.IngestFile(plain)
	require.NoError(t, err)
	fromGzip, err := in.IngestFile(compressed)
	require.NoError(t, err)

	require.Len(t, fromPlain, 2)
	assert.Equal(t, fromPlain, fromGzip)

	fromReader, err := in.IngestReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Len(t, fromReader, 2)
}

func TestIngestFileMissing(t *testing.T) {
	_, err := NewIngestor(nil).IngestFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing.csv"))
}

func TestSummarize(t *testing.T) {
	points, err := NewIngestor(time.UTC).IngestReader(strings.NewReader(header +
		"2024-01-01T00:00:00Z,dev1,modbus,5,10,READ\n" +
		"2024-01-01T00:00:01Z,dev1,modbus,6,11,READ\n" +
		"2024-01-01T00:00:02Z,dev1,slider,s1,20,\n"))
	require.NoError(t, err)

	assert.Equal(t, model.CSVSummary{Total: 3, Modbus: 2, Slider: 1, CSV: 3}, Summarize(points))
	assert.Equal(t, model.CSVSummary{}, Summarize(nil))
}
