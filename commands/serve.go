package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/penwyp/podscope/internal/application/monitor"
	"github.com/penwyp/podscope/internal/config"
)

var (
	serveConfigPath string

	// Service flags, applied over the config file when set
	serveListen          string
	serveCSV             string
	serveCSVDir          string
	serveRefreshInterval time.Duration
	serveCapacity        int

	// Pod flags
	serveWatchDir       string
	serveBaseURI        string
	serveToken          string
	serveResources      []string
	serveResourceFormat string
	serveSliderResource string

	// Bus and streaming flags
	serveNATSURL     string
	serveNATSSubject string
	serveSessionsDir string
	serveEDFPath     string
	serveChannel     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live telemetry service",
	Long: `Loads the configured pod resources, subscribes to their change notifications
and serves the merged view over HTTP, together with EDF streaming sessions and
Prometheus metrics.

Resources are given as url or name=url. Flags override the config file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "",
		"YAML config file")
	serveCmd.Flags().StringVar(&serveListen, "listen", ":5000",
		"HTTP listen address")
	serveCmd.Flags().StringVar(&serveCSV, "csv", "",
		"CSV export loaded at startup")
	serveCmd.Flags().StringVar(&serveCSVDir, "csv-dir", "",
		"Directory CSV files may be loaded from over HTTP (default: directory of --csv)")
	serveCmd.Flags().DurationVar(&serveRefreshInterval, "refresh-interval", 30*time.Second,
		"Full reload interval for pod resources")
	serveCmd.Flags().IntVar(&serveCapacity, "capacity", 500,
		"Live point cap")

	serveCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "",
		"Serve resources from a local directory instead of a pod server")
	serveCmd.Flags().StringVar(&serveBaseURI, "base-uri", "",
		"Pod server root URL")
	serveCmd.Flags().StringVar(&serveToken, "token", "",
		"Bearer token for the pod server")
	serveCmd.Flags().StringArrayVar(&serveResources, "resource", nil,
		"Resource to load and subscribe to (url or name=url, repeatable)")
	serveCmd.Flags().StringVar(&serveResourceFormat, "resource-format", "auto",
		"Blob format of --resource entries (auto, register, slider, both)")
	serveCmd.Flags().StringVar(&serveSliderResource, "slider-resource", "",
		"Resource slider commands are appended to")

	serveCmd.Flags().StringVar(&serveNATSURL, "nats-url", "",
		"NATS server URL (empty disables the bus)")
	serveCmd.Flags().StringVar(&serveNATSSubject, "nats-subject", "podscope.points",
		"NATS subject carrying point batches")
	serveCmd.Flags().StringVar(&serveSessionsDir, "sessions-dir", "sessions",
		"Directory searched for the newest EDF recording")
	serveCmd.Flags().StringVar(&serveEDFPath, "edf", "",
		"EDF recording to stream (overrides --sessions-dir)")
	serveCmd.Flags().StringVar(&serveChannel, "channel", "",
		"EDF channel label (default: first signal)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(expandPathIfSet(serveConfigPath))
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	file := cfg.Log.File
	if cmd.Flags().Changed("log-file") || file == "" {
		file = logFile
	}
	format := cfg.Log.Format
	if cmd.Flags().Changed("log-format") {
		format = logFormat
	}
	if err := initLogging(level, file, format, true); err != nil {
		return err
	}

	orchestrator, err := monitor.NewOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return orchestrator.Run(ctx)
}

// applyServeFlags copies explicitly set flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("timezone") || cfg.Timezone == "" {
		cfg.Timezone = timezone
	}
	if flags.Changed("listen") {
		cfg.Listen = serveListen
	}
	if flags.Changed("csv") {
		cfg.CSVPath = expandPath(serveCSV)
	}
	if flags.Changed("csv-dir") {
		cfg.CSVDir = expandPath(serveCSVDir)
	}
	if flags.Changed("refresh-interval") {
		cfg.RefreshInterval = serveRefreshInterval
	}
	if flags.Changed("capacity") {
		cfg.Capacity = serveCapacity
	}

	if flags.Changed("watch-dir") {
		cfg.Pod.WatchDir = expandPath(serveWatchDir)
	}
	if flags.Changed("base-uri") {
		cfg.Pod.BaseURI = serveBaseURI
	}
	if flags.Changed("token") {
		cfg.Pod.Token = serveToken
	}
	for _, raw := range serveResources {
		r, err := parseResourceFlag(raw, serveResourceFormat)
		if err != nil {
			return err
		}
		cfg.Pod.Resources = append(cfg.Pod.Resources, r)
	}
	if flags.Changed("slider-resource") {
		cfg.Pod.SliderResource = serveSliderResource
	}

	if flags.Changed("nats-url") {
		cfg.Bus.URL = serveNATSURL
	}
	if flags.Changed("nats-subject") {
		cfg.Bus.Subject = serveNATSSubject
	}
	if flags.Changed("sessions-dir") {
		cfg.Stream.SessionsDir = expandPath(serveSessionsDir)
	}
	if flags.Changed("edf") {
		cfg.Stream.EDFPath = expandPath(serveEDFPath)
	}
	if flags.Changed("channel") {
		cfg.Stream.Channel = serveChannel
	}
	return nil
}

// parseResourceFlag accepts "url" or "name=url". Only a name without "/" or
// ":" counts, so query strings in URLs are left alone.
func parseResourceFlag(raw, format string) (config.Resource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return config.Resource{}, fmt.Errorf("empty --resource value")
	}
	name, url := "", raw
	if i := strings.Index(raw, "="); i > 0 && !strings.ContainsAny(raw[:i], "/:?") {
		name, url = raw[:i], raw[i+1:]
	}
	if url == "" {
		return config.Resource{}, fmt.Errorf("resource %q has no url", raw)
	}
	return config.Resource{Name: name, URL: url, Format: format}, nil
}

func expandPathIfSet(path string) string {
	if path == "" {
		return ""
	}
	return expandPath(path)
}
