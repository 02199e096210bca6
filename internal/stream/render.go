package stream

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const (
	defaultPlotWidth  = 800
	defaultPlotHeight = 240
	plotMargin        = 10
)

var (
	plotBackground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	plotGrid       = color.RGBA{R: 220, G: 220, B: 220, A: 255}
)

// Renderer turns a signal window into the payload of a snapshot event.
type Renderer interface {
	Render(window []float64, stage string) (string, error)
}

// PNGRenderer draws the window as a line chart colored by stage and returns it
// as a base64 data URI.
type PNGRenderer struct {
	Width, Height int
}

// Render implements Renderer.
func (r PNGRenderer) Render(window []float64, stage string) (string, error) {
	data, err := r.RenderPNG(window, stage)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// RenderPNG returns the encoded PNG bytes.
func (r PNGRenderer) RenderPNG(window []float64, stage string) ([]byte, error) {
	width, height := r.Width, r.Height
	if width <= 2*plotMargin {
		width = defaultPlotWidth
	}
	if height <= 2*plotMargin {
		height = defaultPlotHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: plotBackground}, image.Point{}, draw.Src)

	plotW := width - 2*plotMargin
	plotH := height - 2*plotMargin
	for i := 0; i <= 4; i++ {
		y := plotMargin + i*plotH/4
		drawLine(img, plotMargin, y, plotMargin+plotW, y, plotGrid)
	}

	if len(window) > 1 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range window {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if hi == lo {
			hi, lo = hi+1, lo-1
		}

		trace := StageColor(stage)
		toPoint := func(i int) (int, int) {
			x := plotMargin + int(math.Round(float64(i)*float64(plotW)/float64(len(window)-1)))
			y := plotMargin + int(math.Round((hi-window[i])*float64(plotH)/(hi-lo)))
			return x, y
		}
		px, py := toPoint(0)
		for i := 1; i < len(window); i++ {
			x, y := toPoint(i)
			drawLine(img, px, py, x, y, trace)
			px, py = x, y
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawLine rasterizes a segment with Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
