package raster

import (
	"image"
	"math"
)

// Component is a connected foreground region of a mask together with its
// external contour.
type Component struct {
	Label      int32
	PixelCount int
	Bounds     image.Rectangle
	CentroidX  float64
	CentroidY  float64
	// Ring is the external boundary in pixel coordinates, traced clockwise.
	// It is not explicitly closed; consumers append the first point.
	Ring []image.Point
}

// AspectRatio returns max(w,h)/(min(w,h)+1) of the bounding box, matching the
// elongation filter used on detection candidates.
func (c Component) AspectRatio() float64 {
	w, h := c.Bounds.Dx(), c.Bounds.Dy()
	long, short := w, h
	if h > w {
		long, short = h, w
	}
	return float64(long) / float64(short+1)
}

// Components labels the 8-connected foreground regions of the mask and traces
// each region's external contour. It returns the components and the label
// grid (0 = background) for masked statistics.
func Components(m *Mask) ([]Component, []int32) {
	labels := make([]int32, m.W*m.H)
	var comps []Component
	var next int32 = 1

	var stack []image.Point
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			idx := y*m.W + x
			if m.Pix[idx] == 0 || labels[idx] != 0 {
				continue
			}

			// Flood-fill this component. The scan order guarantees (x, y) is
			// the topmost-leftmost pixel, the canonical trace start.
			c := Component{
				Label:  next,
				Bounds: image.Rect(x, y, x+1, y+1),
			}
			var sumX, sumY float64
			stack = append(stack[:0], image.Pt(x, y))
			labels[idx] = next
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				c.PixelCount++
				sumX += float64(p.X)
				sumY += float64(p.Y)
				c.Bounds = c.Bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || nx >= m.W || ny < 0 || ny >= m.H {
							continue
						}
						ni := ny*m.W + nx
						if m.Pix[ni] != 0 && labels[ni] == 0 {
							labels[ni] = next
							stack = append(stack, image.Pt(nx, ny))
						}
					}
				}
			}
			c.CentroidX = sumX / float64(c.PixelCount)
			c.CentroidY = sumY / float64(c.PixelCount)
			c.Ring = traceBoundary(labels, m.W, m.H, next, image.Pt(x, y))
			comps = append(comps, c)
			next++
		}
	}
	return comps, labels
}

// traceBoundary walks the external contour of a labeled region clockwise
// using Moore neighbor tracing from the topmost-leftmost pixel.
func traceBoundary(labels []int32, w, h int, label int32, start image.Point) []image.Point {
	dx := [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	dy := [8]int{0, 1, 1, 1, 0, -1, -1, -1}

	ring := []image.Point{start}
	cur := start
	// From the topmost-leftmost pixel all foreground neighbors lie in the
	// E..SW clockwise arc, so the sweep starts east.
	dir := 0
	limit := 4 * (w*h + 1)
	for steps := 0; steps < limit; steps++ {
		found := -1
		for i := 0; i < 8; i++ {
			d := (dir + i) % 8
			nx, ny := cur.X+dx[d], cur.Y+dy[d]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			if labels[ny*w+nx] == label {
				found = d
				break
			}
		}
		if found < 0 {
			// Isolated pixel.
			return ring
		}
		cur = image.Pt(cur.X+dx[found], cur.Y+dy[found])
		if cur == start {
			return ring
		}
		ring = append(ring, cur)
		// Resume the sweep from the neighbor counterclockwise of the one we
		// came from, keeping the background on our left.
		dir = (found + 6) % 8
	}
	return ring
}

// MaskedMean returns the mean of g over the pixels carrying the given label.
// NaN samples are skipped; an empty selection yields 0.
func MaskedMean(g *Grid, labels []int32, label int32) float64 {
	var sum float64
	var n int
	for i, l := range labels {
		if l != label {
			continue
		}
		v := g.Data[i]
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
