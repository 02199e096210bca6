package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/config"
)

func TestParseResourceFlag(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    config.Resource
		wantErr bool
	}{
		{name: "bare path", raw: "esp/modbus", want: config.Resource{URL: "esp/modbus", Format: "auto"}},
		{name: "named", raw: "modbus=esp/modbus", want: config.Resource{Name: "modbus", URL: "esp/modbus", Format: "auto"}},
		{name: "url with query", raw: "https://pod.example/data?x=1", want: config.Resource{URL: "https://pod.example/data?x=1", Format: "auto"}},
		{name: "named url", raw: "slider=https://pod.example/slider", want: config.Resource{Name: "slider", URL: "https://pod.example/slider", Format: "auto"}},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "name only", raw: "modbus=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResourceFlag(tt.raw, "auto")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyServeFlags(t *testing.T) {
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	watchDir := t.TempDir()
	flags := serveCmd.Flags()
	require.NoError(t, flags.Set("listen", "127.0.0.1:9000"))
	require.NoError(t, flags.Set("watch-dir", watchDir))
	require.NoError(t, flags.Set("resource", "modbus=esp/modbus"))
	require.NoError(t, flags.Set("resource", "esp/slider"))
	require.NoError(t, flags.Set("resource-format", "register"))
	require.NoError(t, flags.Set("refresh-interval", "5s"))
	require.NoError(t, flags.Set("nats-url", "nats://127.0.0.1:4222"))
	csvDir := t.TempDir()
	require.NoError(t, flags.Set("csv-dir", csvDir))

	cfg := &config.Config{
		Listen:   ":5000",
		Capacity: 100,
		Pod: config.PodConfig{
			Resources: []config.Resource{{Name: "file", URL: "esp/file"}},
		},
	}
	require.NoError(t, applyServeFlags(serveCmd, cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 100, cfg.Capacity, "unset flags keep file values")
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval)
	assert.Equal(t, watchDir, cfg.Pod.WatchDir)
	assert.Equal(t, csvDir, cfg.CSVDir)
	assert.True(t, cfg.BusEnabled())
	assert.Equal(t, "podscope.points", cfg.Bus.Subject)

	require.Len(t, cfg.Pod.Resources, 3)
	assert.Equal(t, "esp/file", cfg.Pod.Resources[0].URL)
	assert.Equal(t, config.Resource{Name: "modbus", URL: "esp/modbus", Format: "register"}, cfg.Pod.Resources[1])
	assert.Equal(t, config.Resource{Name: "esp/slider", URL: "esp/slider", Format: "register"}, cfg.Pod.Resources[2])
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pod:\n  resources:\n    - url: esp/modbus\n"), 0644))

	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_uri or watch_dir")

	_, err = execute(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
