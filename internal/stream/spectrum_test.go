package stream_test

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/stream"
)

func sine(freq, rate float64, seconds int) []float64 {
	n := int(rate) * seconds
	out := make([]float64, n)
	for i := range out {
		out[i] = 50 * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func TestBandPowersPeakInMatchingBand(t *testing.T) {
	tests := []struct {
		freq float64
		band string
	}{
		{freq: 2, band: "delta"},
		{freq: 6, band: "theta"},
		{freq: 10, band: "alpha"},
		{freq: 20, band: "beta"},
	}
	for _, tt := range tests {
		t.Run(tt.band, func(t *testing.T) {
			powers := stream.BandPowers(sine(tt.freq, 100, 30), 100)
			require.Len(t, powers, 4)
			for name, p := range powers {
				if name != tt.band {
					assert.Less(t, p, powers[tt.band], name)
				}
			}
		})
	}
}

func TestBandPowersEmpty(t *testing.T) {
	powers := stream.BandPowers(nil, 100)
	assert.Equal(t, map[string]float64{"delta": 0, "theta": 0, "alpha": 0, "beta": 0}, powers)
}

func TestEstimateStage(t *testing.T) {
	tests := []struct {
		name   string
		powers map[string]float64
		want   string
	}{
		{name: "deep", powers: map[string]float64{"delta": 6, "theta": 2, "alpha": 1, "beta": 1}, want: stream.StageN3},
		{name: "awake", powers: map[string]float64{"delta": 2, "theta": 2, "alpha": 4, "beta": 2}, want: stream.StageAwake},
		{name: "rem", powers: map[string]float64{"delta": 1, "theta": 4, "alpha": 2, "beta": 3}, want: stream.StageREM},
		{name: "light", powers: map[string]float64{"delta": 4, "theta": 3, "alpha": 2, "beta": 1}, want: stream.StageN2},
		{name: "drowsy", powers: map[string]float64{"delta": 2, "theta": 3, "alpha": 2.5, "beta": 2.5}, want: stream.StageN1},
		{name: "silent", powers: map[string]float64{}, want: stream.StageN1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stream.EstimateStage(tt.powers))
		})
	}
}

func TestPNGRendererDrawsStageColoredTrace(t *testing.T) {
	r := stream.PNGRenderer{Width: 200, Height: 80}
	uri, err := r.Render(sine(2, 100, 2), stream.StageN3)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())

	want := stream.StageColor(stream.StageN3)
	found := false
	for y := 0; y < 80 && !found; y++ {
		for x := 0; x < 200; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if uint8(r>>8) == want.R && uint8(g>>8) == want.G && uint8(b>>8) == want.B {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "trace color not drawn")
}

func TestPNGRendererDefaultsAndFlatSignal(t *testing.T) {
	raw, err := stream.PNGRenderer{}.RenderPNG([]float64{3, 3, 3}, stream.StageN1)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}
