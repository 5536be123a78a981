package raster

import "image"

// Mask is a binary raster. Pix holds 0 (background) or 255 (foreground),
// row-major, matching image.Gray so it can round-trip through image filters.
type Mask struct {
	W, H int
	Pix  []uint8
}

// NewMask allocates an all-background mask.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]uint8, w*h)}
}

// At reports whether (x, y) is foreground.
func (m *Mask) At(x, y int) bool {
	return m.Pix[y*m.W+x] != 0
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, on bool) {
	if on {
		m.Pix[y*m.W+x] = 255
	} else {
		m.Pix[y*m.W+x] = 0
	}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	var n int
	for _, p := range m.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}

// Gray returns the mask as an image.Gray sharing no backing storage.
func (m *Mask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.W, m.H))
	copy(img.Pix, m.Pix)
	return img
}

// maskFromImage rebuilds a binary mask from any image by thresholding the
// red channel at mid-gray. Used to round-trip through bild's filters, which
// return RGBA.
func maskFromImage(img image.Image) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			m.Set(x-b.Min.X, y-b.Min.Y, r >= 0x8000)
		}
	}
	return m
}

// RangeMask returns the mask of pixels with lo ≤ v ≤ hi.
func RangeMask(g *Grid, lo, hi float64) *Mask {
	m := NewMask(g.W, g.H)
	for i, v := range g.Data {
		if v >= lo && v <= hi {
			m.Pix[i] = 255
		}
	}
	return m
}
