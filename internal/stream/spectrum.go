package stream

import (
	"image/color"
	"math"
)

// Band is a named frequency range [Low, High) in Hz.
type Band struct {
	Name      string
	Low, High float64
}

// Bands are the EEG bands used for staging.
var Bands = []Band{
	{Name: "delta", Low: 0.5, High: 4},
	{Name: "theta", Low: 4, High: 8},
	{Name: "alpha", Low: 8, High: 13},
	{Name: "beta", Low: 13, High: 30},
}

// Sleep stages returned by EstimateStage.
const (
	StageN3    = "N3"
	StageN2    = "N2"
	StageN1    = "N1"
	StageREM   = "REM"
	StageAwake = "Awake"
)

// BandPowers sums the power spectrum of a Hann-windowed, mean-removed signal
// within each band. Only the DFT bins that fall inside a band are evaluated.
func BandPowers(samples []float64, rate float64) map[string]float64 {
	powers := make(map[string]float64, len(Bands))
	for _, b := range Bands {
		powers[b.Name] = 0
	}
	n := len(samples)
	if n == 0 || rate <= 0 {
		return powers
	}

	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)

	windowed := make([]float64, n)
	for i, v := range samples {
		windowed[i] = (v - mean) * hann(i, n)
	}

	cosTable, sinTable := twiddles(n)
	binWidth := rate / float64(n)
	maxBin := n / 2

	for _, b := range Bands {
		first := int(math.Ceil(b.Low/binWidth - 1e-9))
		for k := first; k <= maxBin; k++ {
			freq := float64(k) * binWidth
			if freq >= b.High {
				break
			}
			powers[b.Name] += binPower(windowed, k, cosTable, sinTable)
		}
	}
	return powers
}

func hann(i, n int) float64 {
	if n == 1 {
		return 1
	}
	return 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func twiddles(n int) ([]float64, []float64) {
	cosTable := make([]float64, n)
	sinTable := make([]float64, n)
	for i := range cosTable {
		angle := 2 * math.Pi * float64(i) / float64(n)
		cosTable[i] = math.Cos(angle)
		sinTable[i] = math.Sin(angle)
	}
	return cosTable, sinTable
}

// binPower returns |X[k]|^2 of the DFT of x.
func binPower(x []float64, k int, cosTable, sinTable []float64) float64 {
	n := len(x)
	var re, im float64
	idx := 0
	for t := 0; t < n; t++ {
		re += x[t] * cosTable[idx]
		im -= x[t] * sinTable[idx]
		idx += k
		if idx >= n {
			idx -= n
		}
	}
	return re*re + im*im
}

// EstimateStage classifies relative band powers into a sleep stage.
func EstimateStage(powers map[string]float64) string {
	total := 0.0
	for _, p := range powers {
		total += p
	}
	if total == 0 {
		total = 1
	}
	rel := func(name string) float64 { return powers[name] / total }

	switch {
	case rel("delta") > 0.50:
		return StageN3
	case rel("alpha") > 0.30:
		return StageAwake
	case rel("theta") > 0.35 && rel("beta") > 0.20:
		return StageREM
	case rel("delta") > 0.30:
		return StageN2
	default:
		return StageN1
	}
}

// StageColor is the trace color for a stage.
func StageColor(stage string) color.RGBA {
	switch stage {
	case StageN3:
		return rgb(0.0, 0.0, 0.8)
	case StageN2:
		return rgb(0.0, 0.6, 0.9)
	case StageREM:
		return rgb(0.9, 0.1, 0.1)
	case StageAwake:
		return rgb(0.0, 0.8, 0.0)
	default:
		return rgb(1.0, 0.8, 0.0)
	}
}

func rgb(r, g, b float64) color.RGBA {
	return color.RGBA{R: uint8(math.Round(r * 255)), G: uint8(math.Round(g * 255)), B: uint8(math.Round(b * 255)), A: 255}
}
