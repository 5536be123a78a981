// Package gridagg aggregates geometries onto a regular fishnet grid:
// area-weighted sums of valued polygons and point counts per cell.
package gridagg

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Cell is one fishnet tile in planar coordinates. IDs are stable t_i_j keys
// with i indexing columns (x) and j indexing rows (y).
type Cell struct {
	ID                     string  `json:"tile_id"`
	I, J                   int     `json:"-"`
	MinX, MinY, MaxX, MaxY float64 `json:"-"`
	Value                  float64 `json:"value"`
	Count                  int     `json:"count"`
}

// Bounds is a planar extent.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Fishnet tiles the bounds with square cells of the given size. Edges snap
// outward to multiples of the cell size so grids over overlapping extents
// share cell boundaries.
func Fishnet(b Bounds, cellSize float64) ([]Cell, error) {
	if cellSize <= 0 {
		return nil, eris.Errorf("gridagg: cell size must be positive, got %g", cellSize)
	}
	if b.MinX >= b.MaxX || b.MinY >= b.MaxY {
		return nil, eris.Errorf("gridagg: degenerate bounds [%g %g %g %g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
	}

	minX := math.Floor(b.MinX/cellSize) * cellSize
	minY := math.Floor(b.MinY/cellSize) * cellSize
	maxX := math.Ceil(b.MaxX/cellSize) * cellSize
	maxY := math.Ceil(b.MaxY/cellSize) * cellSize

	nx := int(math.Round((maxX - minX) / cellSize))
	ny := int(math.Round((maxY - minY) / cellSize))

	cells := make([]Cell, 0, nx*ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			x := minX + float64(i)*cellSize
			y := minY + float64(j)*cellSize
			cells = append(cells, Cell{
				ID:   fmt.Sprintf("t_%d_%d", i, j),
				I:    i,
				J:    j,
				MinX: x,
				MinY: y,
				MaxX: x + cellSize,
				MaxY: y + cellSize,
			})
		}
	}
	return cells, nil
}

// CountPoints increments each cell's Count for every point falling inside it.
// Points on a shared edge belong to the cell with the larger coordinate.
func CountPoints(cells []Cell, points [][2]float64) {
	for i := range cells {
		c := &cells[i]
		for _, p := range points {
			if p[0] >= c.MinX && p[0] < c.MaxX && p[1] >= c.MinY && p[1] < c.MaxY {
				c.Count++
			}
		}
	}
}
