package aggregator

import (
	"sort"
	"time"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
)

// GroupKey returns the bucket a point belongs to under mode.
func GroupKey(p model.Point, mode model.GroupingMode) string {
	switch mode {
	case model.GroupBySource:
		return p.Provenance.Label() + ": " + p.Device()
	case model.GroupByCombined:
		return constants.CombinedGroupKey
	default:
		return p.Device()
	}
}

// Project buckets points by mode and sorts every bucket ascending by timestamp.
// It copies its input and has no side effects; an empty set yields an empty view.
func Project(points []model.Point, mode model.GroupingMode) model.GroupedView {
	view := make(model.GroupedView)
	for _, p := range points {
		key := GroupKey(p, mode)
		view[key] = append(view[key], p)
	}
	for _, bucket := range view {
		SortByTime(bucket)
	}
	return view
}

// SortByTime orders points ascending by timestamp, keeping arrival order for ties.
func SortByTime(points []model.Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// FilterByKind returns the points the filter allows, in order.
func FilterByKind(points []model.Point, filter model.KindFilter) []model.Point {
	if filter == model.FilterBoth || filter == "" {
		return append([]model.Point(nil), points...)
	}
	filtered := make([]model.Point, 0, len(points))
	for _, p := range points {
		if filter.Allows(p.Kind) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Summarize counts points by kind and provenance.
func Summarize(points []model.Point) model.Summary {
	summary := model.Summary{
		Total: len(points),
		CountByKind: map[model.Kind]int{
			model.KindRegister: 0,
			model.KindSlider:   0,
		},
		CountByProvenance: make(map[model.Provenance]int, len(model.Provenances)),
	}
	for _, prov := range model.Provenances {
		summary.CountByProvenance[prov] = 0
	}
	for _, p := range points {
		switch p.Kind {
		case model.KindRegister, model.KindSlider:
			summary.CountByKind[p.Kind]++
		}
		if p.Provenance.Valid() {
			summary.CountByProvenance[p.Provenance]++
		}
	}
	return summary
}

// ToDisplay maps every bucket of view to chart points rendered in loc.
func ToDisplay(view model.GroupedView, loc *time.Location) map[string][]model.DisplayPoint {
	out := make(map[string][]model.DisplayPoint, len(view))
	for key, points := range view {
		mapped := make([]model.DisplayPoint, len(points))
		for i, p := range points {
			mapped[i] = p.ToDisplay(loc)
		}
		out[key] = mapped
	}
	return out
}
