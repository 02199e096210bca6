package parser

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

// Format names the serialization of a resource blob.
type Format string

const (
	FormatRegister Format = "register"
	FormatSlider   Format = "slider"
	FormatBoth     Format = "both"
	FormatAuto     Format = "auto"
)

// ParseFormat validates a format name; empty selects auto-detection.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatRegister, "modbus", "ttl", "nt":
		return FormatRegister, nil
	case FormatSlider, "text", "txt":
		return FormatSlider, nil
	case FormatBoth:
		return FormatBoth, nil
	default:
		return "", fmt.Errorf("unknown blob format '%s'", s)
	}
}

// DetectFormat guesses the format from content: RDF directives or subject IRIs
// mean register, bracketed lines mean slider. Mixed or unknown content is both.
func DetectFormat(blob string) Format {
	hasRegister := strings.Contains(blob, "@prefix") || subjectPattern.MatchString(blob)
	hasSlider := false
	for _, line := range strings.Split(blob, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "[") && sliderLinePattern.MatchString(line) {
			hasSlider = true
			break
		}
	}

	switch {
	case hasRegister && !hasSlider:
		return FormatRegister
	case hasSlider && !hasRegister:
		return FormatSlider
	default:
		return FormatBoth
	}
}

// Options configures a Parser.
type Options struct {
	// TimeProvider supplies "now" and the location for slider clock times.
	TimeProvider *util.TimeProvider
	DayAnchor    DayAnchor
	Concurrency  int
}

// Parser turns resource blobs into typed points. It is safe for concurrent use;
// ParseFile results are cached per path until the file content changes.
type Parser struct {
	timeProvider *util.TimeProvider
	dayAnchor    DayAnchor
	concurrency  int

	mu    sync.Mutex
	cache map[string]cachedFile
}

type cachedFile struct {
	fingerprint string
	format      Format
	points      []model.Point
}

// ParseResult is the outcome of parsing one file.
type ParseResult struct {
	File   string
	Points []model.Point
	Error  error
}

// NewParser creates a Parser.
func NewParser(opts Options) *Parser {
	tp := opts.TimeProvider
	if tp == nil {
		tp = util.GetTimeProvider()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Parser{
		timeProvider: tp,
		dayAnchor:    opts.DayAnchor,
		concurrency:  concurrency,
		cache:        make(map[string]cachedFile),
	}
}

// ParseBlob runs the parser(s) selected by format. Both runs register then slider
// over the same blob. It never fails; unparseable content yields no points.
func (p *Parser) ParseBlob(format Format, blob string) []model.Point {
	if format == FormatAuto || format == "" {
		format = DetectFormat(blob)
	}

	switch format {
	case FormatRegister:
		return ParseRegister(blob)
	case FormatSlider:
		return p.ParseSlider(blob)
	default:
		registers := ParseRegister(blob)
		return append(registers, p.ParseSlider(blob)...)
	}
}

// ParseFile reads and parses the blob at path.
func (p *Parser) ParseFile(path string, format Format) ([]model.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		util.LogDebugf("Failed to read file: %s - %v", path, err)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fingerprint := util.ContentFingerprint(data)

	p.mu.Lock()
	if cached, ok := p.cache[path]; ok && cached.fingerprint == fingerprint && cached.format == format {
		p.mu.Unlock()
		return cached.points, nil
	}
	p.mu.Unlock()

	util.LogDebugf("Start parsing file: %s", path)
	points := p.ParseBlob(format, string(data))

	p.mu.Lock()
	p.cache[path] = cachedFile{fingerprint: fingerprint, format: format, points: points}
	p.mu.Unlock()

	return points, nil
}

// ParseFiles parses files concurrently and streams one result per file.
func (p *Parser) ParseFiles(files []string, format Format) <-chan ParseResult {
	start := time.Now()
	results := make(chan ParseResult, len(files))
	var wg sync.WaitGroup

	util.LogDebugf("Start concurrent parsing of %d files, concurrency: %d", len(files), p.concurrency)

	semaphore := make(chan struct{}, p.concurrency)

	for _, file := range files {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			points, err := p.ParseFile(f, format)
			if err != nil {
				util.LogDebugf("File parsing failed: %s - %v", f, err)
			}
			results <- ParseResult{File: f, Points: points, Error: err}
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
		util.LogDebugf("Concurrent parsing finished, total duration: %v", time.Since(start))
	}()

	return results
}
