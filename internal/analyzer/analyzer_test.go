package analyzer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/core/model"
)

const registerBlob = `@prefix ex: <http://example.org/> .
<https://pod.example/esp#r1> ex:value "7" ; ex:register "3" ; ex:function "F1" ; ex:accessed "1710072000" .
<https://pod.example/esp#r2> ex:value "9" ; ex:register "4" ; ex:function "F1" ; ex:accessed "1710072005" .
`

const csvText = "timestamp,deviceId,dataType,register,value,function\n" +
	"2024-03-10T12:00:00Z,sim-1,modbus,3,7,F1\n" +
	"2024-03-10T12:00:01Z,sim-1,slider,,42,Slider\n"

func writeInputs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "esp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "esp", "modbus.ttl"), []byte(registerBlob), 0o644))
	// Same content again: merged points must dedup.
	require.NoError(t, os.WriteFile(filepath.Join(root, "esp", "copy.ttl"), []byte(registerBlob), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sample.csv"), []byte(csvText), 0o644))
	return root
}

func TestLoad(t *testing.T) {
	a, err := New(&Config{Paths: []string{writeInputs(t)}, Timezone: "UTC", IncludeCSV: true})
	require.NoError(t, err)
	require.NoError(t, a.Load())

	live := a.Store().Live()
	require.Len(t, live, 2)
	for _, p := range live {
		assert.Equal(t, model.ProvenancePodLive, p.Provenance)
		assert.Equal(t, "esp-device", p.Device())
	}
	assert.Len(t, a.Store().CSV(), 2)

	snap := a.Stats().Snapshot()
	assert.EqualValues(t, 3, snap.Files)
	assert.EqualValues(t, 2, snap.Merged)
	assert.EqualValues(t, 2, snap.Duplicates)
	assert.EqualValues(t, 2, snap.CSVPoints)
}

func TestLoadNoInputs(t *testing.T) {
	a, err := New(&Config{Paths: []string{t.TempDir()}, Timezone: "UTC"})
	require.NoError(t, err)
	assert.ErrorIs(t, a.Load(), ErrNoInputs)
}

func TestRunFormats(t *testing.T) {
	root := writeInputs(t)
	tests := []struct {
		name     string
		config   Config
		contains []string
	}{
		{
			name:     "table by device",
			config:   Config{OutputFormat: "table", IncludeCSV: true},
			contains: []string{"esp-device", "sim-1", "Register 3 - F1", "4 points"},
		},
		{
			name:     "sliders only without csv",
			config:   Config{OutputFormat: "table", Type: "slider"},
			contains: []string{"0 points"},
		},
		{
			name:     "combined json",
			config:   Config{OutputFormat: "json", GroupBy: "combined", IncludeCSV: true},
			contains: []string{`"key": "All Data"`, `"mode": "combined"`},
		},
		{
			name:     "summary",
			config:   Config{OutputFormat: "summary", IncludeCSV: true},
			contains: []string{"Total Points: 4", "Total: 2  Modbus: 1  Slider: 1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := tt.config
			cfg.Paths = []string{root}
			cfg.Timezone = "UTC"
			cfg.Output = &buf
			a, err := New(&cfg)
			require.NoError(t, err)
			require.NoError(t, a.Run())
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	root := writeInputs(t)
	for _, cfg := range []Config{
		{GroupBy: "hourly"},
		{Type: "video"},
		{OutputFormat: "xml"},
		{BlobFormat: "yaml"},
	} {
		cfg.Paths = []string{root}
		cfg.Timezone = "UTC"
		cfg.Output = &bytes.Buffer{}
		a, err := New(&cfg)
		require.NoError(t, err)
		assert.Error(t, a.Run(), "%+v", cfg)
	}
}

func TestNewRejectsBadTimezone(t *testing.T) {
	_, err := New(&Config{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestLoadUsesParseCache(t *testing.T) {
	inputs := writeInputs(t)
	cacheDir := t.TempDir()

	load := func() *Analyzer {
		a, err := New(&Config{Paths: []string{inputs}, Timezone: "UTC", IncludeCSV: true, CacheDir: cacheDir})
		require.NoError(t, err)
		require.NoError(t, a.Load())
		return a
	}

	first := load().Stats().Snapshot()
	assert.EqualValues(t, 0, first.CacheHits)
	assert.EqualValues(t, 3, first.CacheMisses)

	second := load()
	snap := second.Stats().Snapshot()
	assert.EqualValues(t, 3, snap.CacheHits, "register blobs and csv are served from the cache")
	assert.EqualValues(t, 0, snap.CacheMisses)
	assert.EqualValues(t, 3, snap.Files)
	assert.Len(t, second.Store().Live(), 2)
	assert.Len(t, second.Store().CSV(), 2)

	require.NoError(t, os.WriteFile(filepath.Join(inputs, "esp", "copy.ttl"), []byte("[1:00:00 PM]: 5\n"), 0o644))
	third := load().Stats().Snapshot()
	assert.EqualValues(t, 2, third.CacheHits)
	assert.EqualValues(t, 1, third.CacheMisses)

	fourth := load().Stats().Snapshot()
	assert.EqualValues(t, 1, fourth.CacheMisses, "slider results are never cached")
}
