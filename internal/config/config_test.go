package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/config"
	"github.com/penwyp/podscope/internal/data/parser"
)

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &config.Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, "Local", cfg.Timezone)
	assert.Equal(t, 500, cfg.Capacity)
	assert.Equal(t, 200, cfg.UpdateLogSize)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "today", cfg.Pod.DayAnchor)
	assert.Equal(t, parser.AnchorToday, cfg.Pod.Anchor())
	assert.Equal(t, "podscope.points", cfg.Bus.Subject)
	assert.Equal(t, -1, cfg.Bus.MaxReconnects)
	assert.Equal(t, 10*time.Millisecond, cfg.Stream.SampleInterval)
	assert.Equal(t, time.Second, cfg.Stream.SnapshotInterval)
	assert.Equal(t, 30.0, cfg.Stream.WindowSeconds)
	assert.Equal(t, "sessions", cfg.Stream.SessionsDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.BusEnabled())
	assert.Empty(t, cfg.CSVDir, "path loading stays off without a CSV file or dir")
}

func TestValidateCSVDir(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{name: "derived from csv path", cfg: config.Config{CSVPath: "/data/exports/history.csv"}, want: "/data/exports"},
		{name: "explicit dir wins", cfg: config.Config{CSVPath: "/data/exports/history.csv", CSVDir: "/srv/csv"}, want: "/srv/csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			require.NoError(t, cfg.Validate())
			assert.Equal(t, tt.want, cfg.CSVDir)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podscope.yaml")
	content := `listen: 127.0.0.1:8080
capacity: 50
csv_path: data/sample.csv
pod:
  base_uri: https://pod.example.org/alice/
  day_anchor: most-recent
  resources:
    - name: registers
      url: https://pod.example.org/alice/esp/modbus.ttl
      format: register
    - url: https://pod.example.org/alice/esp/modbus
bus:
  url: nats://localhost:4222
  reconnect_wait: 5s
stream:
  edf_path: sessions/night.edf
  channel: EEG Fpz-Cz
  sample_interval: 20ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, 50, cfg.Capacity)
	assert.Equal(t, "data/sample.csv", cfg.CSVPath)
	assert.Equal(t, parser.AnchorMostRecent, cfg.Pod.Anchor())
	require.Len(t, cfg.Pod.Resources, 2)
	assert.Equal(t, "registers", cfg.Pod.Resources[0].Name)
	assert.Equal(t, "https://pod.example.org/alice/esp/modbus", cfg.Pod.Resources[1].Name)
	assert.Equal(t, "auto", cfg.Pod.Resources[1].Format)
	assert.True(t, cfg.BusEnabled())
	assert.Equal(t, 5*time.Second, cfg.Bus.ReconnectWait)
	assert.Equal(t, "EEG Fpz-Cz", cfg.Stream.Channel)
	assert.Equal(t, 20*time.Millisecond, cfg.Stream.SampleInterval)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, &config.Config{}, cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o644))
	_, err = config.Load(path)
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		msg  string
	}{
		{
			name: "negative capacity",
			cfg:  config.Config{Capacity: -1},
			msg:  "capacity",
		},
		{
			name: "resource without url",
			cfg:  config.Config{Pod: config.PodConfig{BaseURI: "https://pod", Resources: []config.Resource{{Name: "x"}}}},
			msg:  "no url",
		},
		{
			name: "unknown format",
			cfg:  config.Config{Pod: config.PodConfig{BaseURI: "https://pod", Resources: []config.Resource{{URL: "a", Format: "xml"}}}},
			msg:  "unknown blob format",
		},
		{
			name: "resources without origin",
			cfg:  config.Config{Pod: config.PodConfig{Resources: []config.Resource{{URL: "a"}}}},
			msg:  "base_uri or watch_dir",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
