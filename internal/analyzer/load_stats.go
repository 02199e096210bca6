package analyzer

import (
	"sync/atomic"

	"github.com/penwyp/podscope/internal/util"
)

// LoadStats counts what a load read and kept.
type LoadStats struct {
	files      int64
	failures   int64
	merged     int64
	duplicates int64
	csvPoints  int64

	cacheHits   int64
	cacheMisses int64
}

// NewLoadStats creates zeroed counters.
func NewLoadStats() *LoadStats {
	return &LoadStats{}
}

func (s *LoadStats) IncrementFiles() {
	atomic.AddInt64(&s.files, 1)
}

func (s *LoadStats) IncrementFailures() {
	atomic.AddInt64(&s.failures, 1)
}

// AddPoints records one merge outcome.
func (s *LoadStats) AddPoints(merged, duplicates int) {
	atomic.AddInt64(&s.merged, int64(merged))
	atomic.AddInt64(&s.duplicates, int64(duplicates))
}

func (s *LoadStats) IncrementCacheHits() {
	atomic.AddInt64(&s.cacheHits, 1)
}

func (s *LoadStats) IncrementCacheMisses() {
	atomic.AddInt64(&s.cacheMisses, 1)
}

func (s *LoadStats) AddCSVPoints(n int) {
	atomic.AddInt64(&s.csvPoints, int64(n))
}

// Snapshot is a copy of the counters.
type Snapshot struct {
	Files      int64
	Failures   int64
	Merged     int64
	Duplicates int64
	CSVPoints  int64

	CacheHits   int64
	CacheMisses int64
}

func (s *LoadStats) Snapshot() Snapshot {
	return Snapshot{
		Files:      atomic.LoadInt64(&s.files),
		Failures:   atomic.LoadInt64(&s.failures),
		Merged:     atomic.LoadInt64(&s.merged),
		Duplicates: atomic.LoadInt64(&s.duplicates),
		CSVPoints:  atomic.LoadInt64(&s.csvPoints),

		CacheHits:   atomic.LoadInt64(&s.cacheHits),
		CacheMisses: atomic.LoadInt64(&s.cacheMisses),
	}
}

// PrintStats logs the counters at debug level.
func (s *LoadStats) PrintStats() {
	snap := s.Snapshot()
	util.LogDebug("Load statistics",
		util.F("files", snap.Files),
		util.F("failures", snap.Failures),
		util.F("merged", snap.Merged),
		util.F("duplicates", snap.Duplicates),
		util.F("csv_points", snap.CSVPoints),
		util.F("cache_hits", snap.CacheHits),
		util.F("cache_misses", snap.CacheMisses))
}
