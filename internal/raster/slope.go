package raster

import "math"

// SlopeDegrees derives a terrain slope map in degrees from a DEM. Gradients
// use central differences (one-sided at the edges); the rise is divided by
// the ground distance per pixel before converting to an angle.
func SlopeDegrees(dem *Grid, metersPerPixel float64) *Grid {
	out := NewGrid(dem.W, dem.H)
	if metersPerPixel <= 0 {
		return out
	}
	for y := 0; y < dem.H; y++ {
		for x := 0; x < dem.W; x++ {
			gx := gradient(dem, x, y, 1, 0)
			gy := gradient(dem, x, y, 0, 1)
			mag := math.Sqrt(gx*gx+gy*gy) / metersPerPixel
			out.Set(x, y, math.Atan(mag)*180/math.Pi)
		}
	}
	return out
}

func gradient(g *Grid, x, y, dx, dy int) float64 {
	x0, y0 := x-dx, y-dy
	x1, y1 := x+dx, y+dy
	span := 2.0
	if x0 < 0 || y0 < 0 {
		x0, y0 = x, y
		span = 1
	}
	if x1 >= g.W || y1 >= g.H {
		x1, y1 = x, y
		span = 1
	}
	if x0 == x1 && y0 == y1 {
		return 0
	}
	return (g.At(x1, y1) - g.At(x0, y0)) / span
}
