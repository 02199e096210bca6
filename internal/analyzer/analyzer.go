package analyzer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/data/cache"
	"github.com/penwyp/podscope/internal/data/csvingest"
	"github.com/penwyp/podscope/internal/data/normalizer"
	"github.com/penwyp/podscope/internal/data/parser"
	"github.com/penwyp/podscope/internal/data/scanner"
	"github.com/penwyp/podscope/internal/presentation/formatter"
	"github.com/penwyp/podscope/internal/stream"
	"github.com/penwyp/podscope/internal/util"
)

// ErrNoInputs is returned when none of the paths hold telemetry files.
var ErrNoInputs = errors.New("no telemetry files found")

// Config drives one offline run of the view command.
type Config struct {
	Paths        []string
	OutputFormat string
	Timezone     string
	GroupBy      string
	Type         string
	BlobFormat   string
	DayAnchor    string
	IncludeCSV   bool
	Capacity     int
	Concurrency  int
	Output       io.Writer
	// CacheDir enables the persistent parse cache when set.
	CacheDir string
}

// Analyzer loads files into a Store and renders a grouped view of it.
type Analyzer struct {
	config       *Config
	timeProvider *util.TimeProvider
	parser       *parser.Parser
	ingestor     *csvingest.Ingestor
	store        *aggregator.Store
	stats        *LoadStats
	cache        cache.Cache
}

// New validates config and builds the pipeline.
func New(config *Config) (*Analyzer, error) {
	if config.Concurrency == 0 {
		config.Concurrency = runtime.NumCPU()
	}
	if config.Timezone == "" {
		config.Timezone = "Local"
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	tp, err := util.NewTimeProvider(config.Timezone)
	if err != nil {
		return nil, err
	}

	var parseCache cache.Cache
	if config.CacheDir != "" {
		fc, err := cache.NewFileCache(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		if err := fc.Preload(); err != nil {
			util.LogWarn("Cache preload failed", util.F("error", err))
		}
		parseCache = fc
	}

	return &Analyzer{
		cache:        parseCache,
		config:       config,
		timeProvider: tp,
		parser: parser.NewParser(parser.Options{
			TimeProvider: tp,
			DayAnchor:    parser.ParseDayAnchor(config.DayAnchor),
			Concurrency:  config.Concurrency,
		}),
		ingestor: csvingest.NewIngestor(tp.Location()),
		store:    aggregator.NewStore(aggregator.StoreOptions{Capacity: config.Capacity, TimeProvider: tp}),
		stats:    NewLoadStats(),
	}, nil
}

// Store exposes the loaded data.
func (a *Analyzer) Store() *aggregator.Store {
	return a.store
}

// Stats returns the counters of the last Load.
func (a *Analyzer) Stats() *LoadStats {
	return a.stats
}

// Run loads every input and prints the view.
func (a *Analyzer) Run() error {
	mode, err := model.ParseGroupingMode(a.config.GroupBy)
	if err != nil {
		return err
	}
	filter, err := model.ParseKindFilter(a.config.Type)
	if err != nil {
		return err
	}
	out, err := formatter.New(a.config.OutputFormat, a.config.Output)
	if err != nil {
		return err
	}

	if err := a.Load(); err != nil {
		return err
	}

	view := a.store.View(mode, filter, a.config.IncludeCSV)
	report := formatter.NewReport(view, mode, filter, a.store.Summary(), a.store.CSVSummary(), a.timeProvider.Location())
	return out.Format(report)
}

// Load scans the paths, merges pod blobs into the live set and replaces the
// CSV set with all CSV rows.
func (a *Analyzer) Load() error {
	startTime := time.Now()
	util.LogInfo("Starting telemetry load...")

	files, err := scanner.ScanPaths(a.config.Paths)
	if err != nil {
		return fmt.Errorf("failed to scan inputs: %w", err)
	}
	if files.Total() == 0 {
		return ErrNoInputs
	}
	util.LogInfo("Found telemetry files",
		util.F("blobs", len(files.Blobs)),
		util.F("csv", len(files.CSV)),
		util.F("edf", len(files.EDF)))

	if err := a.loadBlobs(files.Blobs); err != nil {
		return err
	}
	a.loadCSV(files.CSV)
	a.describeRecordings(files.EDF)

	a.stats.PrintStats()
	util.LogInfof("Load finished in %v", time.Since(startTime))
	return nil
}

func (a *Analyzer) loadBlobs(files []string) error {
	if len(files) == 0 {
		return nil
	}
	format, err := parser.ParseFormat(a.config.BlobFormat)
	if err != nil {
		return err
	}

	// Merge in path order so eviction is deterministic.
	byFile := make(map[string][]model.Point, len(files))
	mode := "blob:" + string(format)
	misses := a.cachedPoints(files, mode, byFile)

	for result := range a.parser.ParseFiles(misses, format) {
		a.stats.IncrementFiles()
		if result.Error != nil {
			a.stats.IncrementFailures()
			util.LogWarn("Skipping unreadable file", util.F("file", result.File), util.F("error", result.Error))
			continue
		}
		byFile[result.File] = result.Points
		if !hasSliders(result.Points) {
			a.storeCached(result.File, mode, result.Points)
		}
	}

	paths := make([]string, 0, len(byFile))
	for path := range byFile {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	norm := normalizer.ForPod(a.timeProvider)
	for _, path := range paths {
		res := a.store.Merge(norm.Normalize(byFile[path]))
		a.stats.AddPoints(len(res.Added), res.Duplicates)
	}
	return nil
}

func (a *Analyzer) loadCSV(files []string) {
	if len(files) == 0 {
		return
	}
	norm := normalizer.ForCSV(a.timeProvider)
	byFile := make(map[string][]model.Point, len(files))
	misses := a.cachedPoints(files, "csv", byFile)
	for _, file := range misses {
		a.stats.IncrementFiles()
		points, err := a.ingestor.IngestFile(file)
		if err != nil {
			a.stats.IncrementFailures()
			util.LogWarn("Skipping CSV file", util.F("file", file), util.F("error", err))
			continue
		}
		byFile[file] = points
		a.storeCached(file, "csv", points)
	}

	var all []model.Point
	for _, file := range files {
		all = append(all, norm.Normalize(byFile[file])...)
	}
	a.stats.AddCSVPoints(a.store.LoadCSV(all))
}

// cachedPoints fills byFile from the cache and returns the files to parse.
func (a *Analyzer) cachedPoints(files []string, mode string, byFile map[string][]model.Point) []string {
	if a.cache == nil {
		return files
	}
	var misses []string
	for _, file := range files {
		result := a.cache.Get(file, mode)
		if !result.Found {
			a.stats.IncrementCacheMisses()
			util.LogDebug("Cache miss", util.F("file", file), util.F("reason", result.MissReason.String()))
			misses = append(misses, file)
			continue
		}
		a.stats.IncrementCacheHits()
		a.stats.IncrementFiles()
		byFile[file] = result.Entry.Points
	}
	return misses
}

func (a *Analyzer) storeCached(file, mode string, points []model.Point) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(file, mode, points); err != nil {
		util.LogWarn("Failed to cache parse result", util.F("file", file), util.F("error", err))
	}
}

// hasSliders reports whether points include slider readings, whose clock
// times are anchored to the day they were parsed and so cannot be cached.
func hasSliders(points []model.Point) bool {
	for _, p := range points {
		if p.Kind == model.KindSlider {
			return true
		}
	}
	return false
}

// describeRecordings logs what EDF files are present; they are streamed, not viewed.
func (a *Analyzer) describeRecordings(files []string) {
	for _, file := range files {
		info, err := stream.ReadInfo(file, "")
		if err != nil {
			util.LogWarn("Unreadable EDF recording", util.F("file", file), util.F("error", err))
			continue
		}
		util.LogInfo("EDF recording available",
			util.F("file", info.Filename),
			util.F("rate", info.SamplingRate),
			util.F("channels", len(info.Labels)))
	}
}
