// Package raster provides 2D float64 grids and the image heuristics used by
// the detection pipeline: spectral indices, thresholding, morphology, contour
// extraction and slope computation.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Grid is a dense 2D raster of float64 samples stored row-major.
type Grid struct {
	W, H int
	Data []float64
}

// NewGrid allocates a zero-filled grid of the given dimensions.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Data: make([]float64, w*h)}
}

// At returns the sample at (x, y). Callers must stay in bounds.
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.W+x]
}

// Set writes the sample at (x, y).
func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.W+x] = v
}

// Fill sets every sample to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := NewGrid(g.W, g.H)
	copy(out.Data, g.Data)
	return out
}

// MinMax returns the smallest and largest finite samples. NaNs are skipped.
// An empty or all-NaN grid returns (0, 0).
func (g *Grid) MinMax() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	seen := false
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		seen = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !seen {
		return 0, 0
	}
	return lo, hi
}

// Mean returns the arithmetic mean of all samples, ignoring NaNs.
func (g *Grid) Mean() float64 {
	var sum float64
	var n int
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Scale multiplies every sample by f in place.
func (g *Grid) Scale(f float64) {
	for i := range g.Data {
		g.Data[i] *= f
	}
}

// Shift adds d to every sample in place.
func (g *Grid) Shift(d float64) {
	for i := range g.Data {
		g.Data[i] += d
	}
}

// AllZero reports whether every sample is zero. Fetch failures from the
// imagery APIs commonly manifest as an all-zero tile.
func (g *Grid) AllZero() bool {
	for _, v := range g.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Normalized returns a copy rescaled to [0, 1]. A constant grid maps to zero.
func (g *Grid) Normalized() *Grid {
	lo, hi := g.MinMax()
	out := NewGrid(g.W, g.H)
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range g.Data {
		out.Data[i] = (v - lo) / span
	}
	return out
}

// sameDims verifies that all grids share the same shape.
func sameDims(grids ...*Grid) error {
	if len(grids) == 0 {
		return eris.New("raster: no grids")
	}
	w, h := grids[0].W, grids[0].H
	for _, g := range grids[1:] {
		if g.W != w || g.H != h {
			return eris.Errorf("raster: dimension mismatch %dx%d vs %dx%d", g.W, g.H, w, h)
		}
	}
	return nil
}
