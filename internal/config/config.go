package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/data/parser"
)

// Resource is one pod resource to load and subscribe to.
type Resource struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Format string `yaml:"format"`
}

// PodConfig describes where the live resources come from. With WatchDir set,
// resources are files under that directory instead of HTTP resources.
type PodConfig struct {
	BaseURI   string     `yaml:"base_uri"`
	Token     string     `yaml:"token"`
	WatchDir  string     `yaml:"watch_dir"`
	Resources []Resource `yaml:"resources"`
	// SliderResource receives slider commands posted to the API.
	SliderResource string `yaml:"slider_resource"`
	DayAnchor      string `yaml:"day_anchor"`
}

// BusConfig configures the NATS listener; an empty URL disables it.
type BusConfig struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	ClientName    string        `yaml:"client_name"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// StreamConfig configures EDF streaming sessions.
type StreamConfig struct {
	SessionsDir      string        `yaml:"sessions_dir"`
	EDFPath          string        `yaml:"edf_path"`
	Channel          string        `yaml:"channel"`
	SampleInterval   time.Duration `yaml:"sample_interval"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	WindowSeconds    float64       `yaml:"window_seconds"`
	PlotWidth        int           `yaml:"plot_width"`
	PlotHeight       int           `yaml:"plot_height"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// Config is the serve configuration.
type Config struct {
	Listen          string        `yaml:"listen"`
	Timezone        string        `yaml:"timezone"`
	Capacity        int           `yaml:"capacity"`
	UpdateLogSize   int           `yaml:"update_log_size"`
	CSVPath         string        `yaml:"csv_path"`
	// CSVDir confines CSV files loaded by path over HTTP; it defaults to the
	// directory of CSVPath, and path loading is off when both are empty.
	CSVDir          string        `yaml:"csv_dir"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Concurrency     int           `yaml:"concurrency"`

	Pod    PodConfig    `yaml:"pod"`
	Bus    BusConfig    `yaml:"bus"`
	Stream StreamConfig `yaml:"stream"`
	Log    LogConfig    `yaml:"log"`
}

// Load reads a YAML file. A missing path yields an empty config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = ":5000"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.Capacity == 0 {
		c.Capacity = constants.RetentionCap
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.UpdateLogSize == 0 {
		c.UpdateLogSize = constants.UpdateLogCapacity
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = constants.DataRefreshInterval
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.CSVDir == "" && c.CSVPath != "" {
		c.CSVDir = filepath.Dir(c.CSVPath)
	}

	if err := c.Pod.validate(); err != nil {
		return err
	}
	c.Bus.validate()
	c.Stream.validate()

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return nil
}

func (p *PodConfig) validate() error {
	if p.DayAnchor == "" {
		p.DayAnchor = "today"
	}
	for i := range p.Resources {
		r := &p.Resources[i]
		if r.URL == "" {
			return fmt.Errorf("resource %d has no url", i)
		}
		if r.Name == "" {
			r.Name = r.URL
		}
		if r.Format == "" {
			r.Format = string(parser.FormatAuto)
		}
		if _, err := parser.ParseFormat(r.Format); err != nil {
			return fmt.Errorf("resource %s: %w", r.Name, err)
		}
	}
	if len(p.Resources) > 0 && p.BaseURI == "" && p.WatchDir == "" {
		return errors.New("pod resources need either base_uri or watch_dir")
	}
	return nil
}

func (b *BusConfig) validate() {
	if b.Subject == "" {
		b.Subject = "podscope.points"
	}
	if b.ClientName == "" {
		b.ClientName = "podscope"
	}
	if b.MaxReconnects == 0 {
		b.MaxReconnects = -1
	}
	if b.ReconnectWait == 0 {
		b.ReconnectWait = 2 * time.Second
	}
}

func (s *StreamConfig) validate() {
	if s.SessionsDir == "" {
		s.SessionsDir = "sessions"
	}
	if s.SampleInterval == 0 {
		s.SampleInterval = constants.SampleInterval
	}
	if s.SnapshotInterval == 0 {
		s.SnapshotInterval = constants.SnapshotInterval
	}
	if s.WindowSeconds == 0 {
		s.WindowSeconds = constants.SnapshotWindowSeconds
	}
}

// Anchor returns the slider day anchor.
func (p PodConfig) Anchor() parser.DayAnchor {
	return parser.ParseDayAnchor(p.DayAnchor)
}

// BusEnabled reports whether a NATS listener should run.
func (c *Config) BusEnabled() bool {
	return c.Bus.URL != ""
}
