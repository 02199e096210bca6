package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/penwyp/podscope/internal/util"
)

// FileKind classifies a discovered file.
type FileKind int

const (
	KindIgnored FileKind = iota
	KindCSV
	KindBlob
	KindEDF
)

// blobNames are extensionless resource names a pod mirror uses.
var blobNames = map[string]bool{"modbus": true, "slider": true, "data": true}

// Classify decides what a file holds from its name.
func Classify(path string) FileKind {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasPrefix(name, "."):
		return KindIgnored
	case strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".csv.gz"):
		return KindCSV
	case strings.HasSuffix(name, ".edf"):
		return KindEDF
	case strings.HasSuffix(name, ".ttl"), strings.HasSuffix(name, ".nt"), strings.HasSuffix(name, ".txt"):
		return KindBlob
	case filepath.Ext(name) == "" && blobNames[name]:
		return KindBlob
	default:
		return KindIgnored
	}
}

// Result lists discovered files by kind, each sorted by path.
type Result struct {
	CSV   []string
	Blobs []string
	EDF   []string
}

// Total is the number of discovered files.
func (r Result) Total() int {
	return len(r.CSV) + len(r.Blobs) + len(r.EDF)
}

// FileScanner walks a directory tree for telemetry inputs.
type FileScanner struct {
	baseDir string
}

// NewFileScanner creates a FileScanner rooted at baseDir.
func NewFileScanner(baseDir string) *FileScanner {
	return &FileScanner{baseDir: baseDir}
}

// Scan walks the tree. Unreadable entries are skipped.
func (s *FileScanner) Scan() (Result, error) {
	start := time.Now()
	var result Result
	dirCount, totalCount := 0, 0

	util.LogDebugf("Start scanning directory: %s", s.baseDir)

	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			util.LogDebugf("Skip file (error): %s - %v", path, err)
			return nil
		}
		if info.IsDir() {
			dirCount++
			return nil
		}

		totalCount++
		switch Classify(path) {
		case KindCSV:
			result.CSV = append(result.CSV, path)
		case KindBlob:
			result.Blobs = append(result.Blobs, path)
		case KindEDF:
			result.EDF = append(result.EDF, path)
		}
		return nil
	})

	sort.Strings(result.CSV)
	sort.Strings(result.Blobs)
	sort.Strings(result.EDF)

	util.LogDebug("File scan completed",
		util.F("duration", time.Since(start)),
		util.F("directories", dirCount),
		util.F("files", totalCount),
		util.F("found", result.Total()))

	return result, err
}

// ScanPaths expands each path: directories are scanned, files are classified
// directly. Files of unknown kind named explicitly are treated as blobs.
func ScanPaths(paths []string) (Result, error) {
	var result Result
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return Result{}, err
		}
		if info.IsDir() {
			sub, err := NewFileScanner(p).Scan()
			if err != nil {
				return Result{}, err
			}
			result.CSV = append(result.CSV, sub.CSV...)
			result.Blobs = append(result.Blobs, sub.Blobs...)
			result.EDF = append(result.EDF, sub.EDF...)
			continue
		}
		switch Classify(p) {
		case KindCSV:
			result.CSV = append(result.CSV, p)
		case KindEDF:
			result.EDF = append(result.EDF, p)
		default:
			result.Blobs = append(result.Blobs, p)
		}
	}
	return result, nil
}
