package gridagg

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ValuedPolygon carries a planar polygon and the quantity to distribute.
type ValuedPolygon struct {
	Geom  *geom.Polygon
	Value float64
}

// RegridSum distributes polygon values over the cells. Area-weighted mode
// adds value * (clipped area / polygon area) per cell; otherwise each
// intersecting cell receives the full value. Degenerate polygons are skipped.
func RegridSum(cells []Cell, polygons []ValuedPolygon, areaWeighted bool) {
	log := zap.L().With(zap.String("component", "gridagg"))
	skipped := 0

	for _, vp := range polygons {
		ring := outerRing(vp.Geom)
		polyArea := ringArea(ring)
		if polyArea <= 0 {
			skipped++
			continue
		}

		for i := range cells {
			c := &cells[i]
			clipped := clipToRect(ring, c.MinX, c.MinY, c.MaxX, c.MaxY)
			interArea := ringArea(clipped)
			if interArea <= 0 {
				continue
			}
			if areaWeighted {
				c.Value += vp.Value * (interArea / polyArea)
			} else {
				c.Value += vp.Value
			}
		}
	}

	if skipped > 0 {
		log.Warn("degenerate polygons skipped", zap.Int("count", skipped))
	}
}

// outerRing extracts the exterior ring vertices, dropping the closing point.
func outerRing(p *geom.Polygon) [][2]float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return nil
	}
	coords := p.LinearRing(0).Coords()
	if len(coords) > 1 {
		first, last := coords[0], coords[len(coords)-1]
		if first[0] == last[0] && first[1] == last[1] {
			coords = coords[:len(coords)-1]
		}
	}
	ring := make([][2]float64, len(coords))
	for i, c := range coords {
		ring[i] = [2]float64{c[0], c[1]}
	}
	return ring
}

// ringArea is the shoelace area of a simple ring, orientation-independent.
func ringArea(ring [][2]float64) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return math.Abs(sum) / 2
}

// clipToRect clips a ring against an axis-aligned rectangle with the
// Sutherland-Hodgman algorithm, one half-plane at a time.
func clipToRect(ring [][2]float64, minX, minY, maxX, maxY float64) [][2]float64 {
	ring = clipHalfPlane(ring, func(p [2]float64) float64 { return p[0] - minX })
	ring = clipHalfPlane(ring, func(p [2]float64) float64 { return maxX - p[0] })
	ring = clipHalfPlane(ring, func(p [2]float64) float64 { return p[1] - minY })
	ring = clipHalfPlane(ring, func(p [2]float64) float64 { return maxY - p[1] })
	return ring
}

// clipHalfPlane keeps the part of the ring where inside(p) >= 0.
func clipHalfPlane(ring [][2]float64, inside func([2]float64) float64) [][2]float64 {
	if len(ring) == 0 {
		return nil
	}
	out := make([][2]float64, 0, len(ring)+4)
	for i := range ring {
		cur := ring[i]
		prev := ring[(i+len(ring)-1)%len(ring)]
		curIn, prevIn := inside(cur), inside(prev)

		if curIn >= 0 {
			if prevIn < 0 {
				out = append(out, intersect(prev, cur, prevIn, curIn))
			}
			out = append(out, cur)
		} else if prevIn >= 0 {
			out = append(out, intersect(prev, cur, prevIn, curIn))
		}
	}
	return out
}

// intersect interpolates the boundary crossing between two vertices given
// their signed distances to the clip line.
func intersect(a, b [2]float64, da, db float64) [2]float64 {
	t := da / (da - db)
	return [2]float64{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
}
