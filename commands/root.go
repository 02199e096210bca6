package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/penwyp/podscope/internal/analyzer"
	"github.com/penwyp/podscope/internal/util"
)

var (
	// Logging related
	debug     bool
	logFile   string
	logFormat string

	// Output related
	outputFormat string
	timezone     string

	// Filtering and grouping
	groupBy    string
	pointType  string
	blobFormat string
	dayAnchor  string
	includeCSV bool
	capacity   int

	// Parse cache
	cacheDir string
	noCache  bool
	reset    bool

	rootCmd = &cobra.Command{
		Use:   "podscope [paths...]",
		Short: "Industrial telemetry viewer for Solid pods",
		Long: `podscope collects Modbus register readings and slider commands published to a
Solid pod, merges them with CSV exports and presents them grouped by device,
register, slider or time.

Without a subcommand it analyzes local files: register blobs (.ttl, .nt),
slider text (.txt), CSV exports (.csv, .csv.gz) and directories containing them.

Examples:
  podscope ./exports                                # Table grouped by device
  podscope --group-by source --type register data/  # Registers, by pod/CSV origin
  podscope -o json --group-by combined modbus.ttl   # JSON, one group
  podscope -o summary --no-csv ./exports            # Summary of pod data only
  podscope serve --config podscope.yaml             # Run the live service
  podscope stream sessions/night.edf                # Stream an EDF channel`,
		Args: cobra.ArbitraryArgs,
		RunE: runView,
	}
)

const (
	defaultLogFile  = "~/.podscope/logs/app.log"
	defaultCacheDir = "~/.podscope/cache"
)

func init() {
	// System and debugging
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile,
		"Log file path (empty to log to stderr)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "Local",
		"Timezone setting (e.g., Europe/Berlin, UTC)")

	// Data organization and analysis
	rootCmd.Flags().StringVar(&groupBy, "group-by", "device",
		"Group by (device, source, combined)")
	rootCmd.Flags().StringVar(&pointType, "type", "both",
		"Point type filter (both, register, slider)")
	rootCmd.Flags().StringVar(&blobFormat, "blob-format", "auto",
		"Blob format (auto, register, slider, both)")
	rootCmd.Flags().StringVar(&dayAnchor, "day-anchor", "today",
		"Day for slider clock times (today, most-recent)")
	rootCmd.Flags().BoolVar(&includeCSV, "csv", true,
		"Include CSV rows in the view")
	rootCmd.Flags().Bool("no-csv", false,
		"Exclude CSV rows (same as --csv=false)")
	rootCmd.Flags().IntVar(&capacity, "capacity", 0,
		"Live point cap (0 = default)")

	// Parse cache
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCacheDir,
		"Parse cache directory")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false,
		"Parse every file even when a cached result is valid")
	rootCmd.Flags().BoolVarP(&reset, "reset", "r", false,
		"Clear cache before analysis")

	// Output configuration
	rootCmd.Flags().StringVarP(&outputFormat, "output", "o", "table",
		"Output format (table, json, csv, summary)")
	rootCmd.Flags().StringVar(&outputFormat, "format", "",
		"Alias for --output")
}

func runView(cmd *cobra.Command, args []string) error {
	// Handle format alias
	if format := cmd.Flags().Lookup("format"); format != nil && format.Changed {
		outputFormat = format.Value.String()
	}
	if cmd.Flags().Changed("no-csv") {
		includeCSV = false
	}

	if err := initLogging(logLevel(), logFile, logFormat, false); err != nil {
		return err
	}

	var parseCacheDir string
	if !noCache {
		parseCacheDir = expandPath(cacheDir)
		if err := ensureDir(parseCacheDir); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		if reset {
			if err := clearCache(parseCacheDir); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			util.LogInfo("Cache cleared")
		}
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for i, p := range paths {
		paths[i] = expandPath(p)
	}

	config := &analyzer.Config{
		Paths:        paths,
		OutputFormat: outputFormat,
		Timezone:     timezone,
		GroupBy:      groupBy,
		Type:         pointType,
		BlobFormat:   blobFormat,
		DayAnchor:    dayAnchor,
		IncludeCSV:   includeCSV,
		Capacity:     capacity,
		Concurrency:  runtime.NumCPU(),
		Output:       cmd.OutOrStdout(),
		CacheDir:     parseCacheDir,
	}

	a, err := analyzer.New(config)
	if err != nil {
		return err
	}
	return a.Run()
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func logLevel() string {
	if debug {
		return "debug"
	}
	return "info"
}

// initLogging installs the global logger. A non-empty file is created with
// its directory; console adds stderr output next to it.
func initLogging(level, file, format string, console bool) error {
	if file != "" {
		file = expandPath(file)
		if err := ensureDir(filepath.Dir(file)); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return util.InitLogger(util.LoggerOptions{
		Level:   level,
		File:    file,
		Format:  util.LogFormat(format),
		Console: console || debug,
	})
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func clearCache(cacheDir string) error {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			if err := os.Remove(filepath.Join(cacheDir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
