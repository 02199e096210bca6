package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func sliderAt(offset time.Duration, value float64, prov model.Provenance, device string) model.Point {
	p := model.NewSliderPoint(value, baseTime.Add(offset), "slider1", "")
	p.Provenance = prov
	p.DeviceID = device
	return p
}

func registerAt(offsetSeconds int64, value float64, index int, prov model.Provenance, device string) model.Point {
	p := model.NewRegisterPoint(value, index, "F1", baseTime.Unix()+offsetSeconds)
	p.Provenance = prov
	p.DeviceID = device
	return p
}

// distinctPoints returns n pod sliders one second apart.
func distinctPoints(n int) []model.Point {
	points := make([]model.Point, n)
	for i := range points {
		points[i] = sliderAt(time.Duration(i)*time.Second, float64(i), model.ProvenancePodLive, "")
	}
	return points
}

func testTimeProvider(t *testing.T) *util.TimeProvider {
	t.Helper()
	tp, err := util.NewTimeProvider("UTC")
	require.NoError(t, err)
	tp.SetNowFunc(func() time.Time { return baseTime })
	return tp
}
