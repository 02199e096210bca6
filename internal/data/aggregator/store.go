package aggregator

import (
	"fmt"
	"sync"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/csvingest"
	"github.com/penwyp/podscope/internal/util"
)

// Observer receives store activity, typically for metrics.
type Observer interface {
	ObserveMerge(result MergeResult)
	ObserveSizes(live, csv int)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	Capacity          int
	UpdateLogCapacity int
	TimeProvider      *util.TimeProvider
	Observer          Observer
}

// Store owns the live point set and the CSV point set. The live set only
// changes through Merge; the CSV set only through LoadCSV and ClearCSV, both
// full replacements. Readers get copies.
type Store struct {
	mu       sync.RWMutex
	capacity int
	live     []model.Point
	csv      []model.Point

	updates      *UpdateLog
	observer     Observer
	timeProvider *util.TimeProvider
}

// NewStore creates an empty Store.
func NewStore(opts StoreOptions) *Store {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = constants.RetentionCap
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = util.GetTimeProvider()
	}
	return &Store{
		capacity:     capacity,
		updates:      NewUpdateLog(opts.UpdateLogCapacity, tp),
		observer:     opts.Observer,
		timeProvider: tp,
	}
}

// Capacity returns the live set retention cap.
func (s *Store) Capacity() int {
	return s.capacity
}

// Merge folds incoming into the live set and records update lines for the
// points that were actually added.
func (s *Store) Merge(incoming []model.Point) MergeResult {
	s.mu.Lock()
	result := Merge(s.live, incoming, s.capacity)
	s.live = result.Points
	live, csv := len(s.live), len(s.csv)
	s.mu.Unlock()

	s.updates.AddPoints(result.Added)
	if len(result.Added) > 0 || result.Evicted > 0 {
		util.LogDebug("Merged points",
			util.F("added", len(result.Added)),
			util.F("duplicates", result.Duplicates),
			util.F("evicted", result.Evicted),
			util.F("live", live))
	}
	if s.observer != nil {
		s.observer.ObserveMerge(result)
		s.observer.ObserveSizes(live, csv)
	}
	return result
}

// LoadCSV replaces the CSV set with points and returns its new size.
func (s *Store) LoadCSV(points []model.Point) int {
	replacement := append([]model.Point(nil), points...)

	s.mu.Lock()
	s.csv = replacement
	live, csv := len(s.live), len(s.csv)
	s.mu.Unlock()

	s.updates.Add(fmt.Sprintf("Loaded %d data points from CSV", csv))
	if s.observer != nil {
		s.observer.ObserveSizes(live, csv)
	}
	return csv
}

// ClearCSV drops the CSV set.
func (s *Store) ClearCSV() {
	s.mu.Lock()
	s.csv = nil
	live := len(s.live)
	s.mu.Unlock()

	s.updates.Add("Cleared CSV data")
	if s.observer != nil {
		s.observer.ObserveSizes(live, 0)
	}
}

// Live returns a copy of the live set, oldest first.
func (s *Store) Live() []model.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Point(nil), s.live...)
}

// CSV returns a copy of the CSV set.
func (s *Store) CSV() []model.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Point(nil), s.csv...)
}

// Points returns the live points allowed by filter, followed by the CSV points
// allowed by filter when includeCSV is set.
func (s *Store) Points(filter model.KindFilter, includeCSV bool) []model.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := FilterByKind(s.live, filter)
	if includeCSV {
		points = append(points, FilterByKind(s.csv, filter)...)
	}
	return points
}

// View projects the current points under mode.
func (s *Store) View(mode model.GroupingMode, filter model.KindFilter, includeCSV bool) model.GroupedView {
	return Project(s.Points(filter, includeCSV), mode)
}

// Summary summarizes the live set together with the CSV set.
func (s *Store) Summary() model.Summary {
	return Summarize(s.Points(model.FilterBoth, true))
}

// CSVSummary counts the loaded CSV set.
func (s *Store) CSVSummary() model.CSVSummary {
	return csvingest.Summarize(s.CSV())
}

// Updates returns the update log lines, oldest first.
func (s *Store) Updates() []string {
	return s.updates.Lines()
}

// UpdateLog exposes the update ring so collaborators can record events.
func (s *Store) UpdateLog() *UpdateLog {
	return s.updates
}

// Reset empties the live set and the update log; the CSV set is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	s.live = nil
	csv := len(s.csv)
	s.mu.Unlock()

	s.updates.Clear()
	if s.observer != nil {
		s.observer.ObserveSizes(0, csv)
	}
}
