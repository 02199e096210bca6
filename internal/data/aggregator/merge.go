package aggregator

import (
	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
)

// MergeResult describes the outcome of one merge.
type MergeResult struct {
	// Points is the new set, oldest first, never longer than the cap.
	Points []model.Point
	// Added holds the incoming points that were not duplicates, in arrival order.
	Added      []model.Point
	Duplicates int
	Evicted    int
}

// Merge appends the incoming points that do not match an existing point on the
// dedup key, then evicts from the front so at most capacity points remain.
// Incoming points are also deduplicated against each other. existing is not
// modified. A non-positive capacity selects the default retention cap.
func Merge(existing, incoming []model.Point, capacity int) MergeResult {
	if capacity <= 0 {
		capacity = constants.RetentionCap
	}

	seen := make(map[model.DedupKey]struct{}, len(existing)+len(incoming))
	for _, p := range existing {
		seen[p.Key()] = struct{}{}
	}

	combined := make([]model.Point, len(existing), len(existing)+len(incoming))
	copy(combined, existing)

	result := MergeResult{}
	for _, p := range incoming {
		key := p.Key()
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		combined = append(combined, p)
		result.Added = append(result.Added, p)
	}

	if overflow := len(combined) - capacity; overflow > 0 {
		result.Evicted = overflow
		combined = append([]model.Point(nil), combined[overflow:]...)
	}
	result.Points = combined
	return result
}
