package georef

import (
	"image"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrTooFewPoints marks a contour that cannot form a polygon ring.
var ErrTooFewPoints = eris.New("georef: contour has fewer than 4 points")

// RingToPolygon projects a pixel-space contour ring into a closed WGS84
// polygon. The ring is closed by repeating the first coordinate; contours
// that end up with fewer than 4 coordinates are rejected.
func RingToPolygon(ring []image.Point, b BBox, w, h int) (*geom.Polygon, error) {
	if len(ring) < 3 {
		return nil, ErrTooFewPoints
	}
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, p := range ring {
		lon, lat := b.PixelToLonLat(float64(p.X), float64(p.Y), w, h)
		flat = append(flat, lon, lat)
	}
	// Close the ring.
	if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
		flat = append(flat, flat[0], flat[1])
	}
	if len(flat)/2 < 4 {
		return nil, ErrTooFewPoints
	}
	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	poly.SetSRID(4326)
	return poly, nil
}

// RoundPolygon returns a copy with coordinates rounded to the given number of
// decimal places. Used to shrink exported GeoJSON: 5 decimals is roughly
// meter precision at mid latitudes.
func RoundPolygon(p *geom.Polygon, decimals int) *geom.Polygon {
	scale := math.Pow(10, float64(decimals))
	flat := p.FlatCoords()
	rounded := make([]float64, len(flat))
	for i, v := range flat {
		rounded[i] = math.Round(v*scale) / scale
	}
	out := geom.NewPolygonFlat(p.Layout(), rounded, p.Ends())
	out.SetSRID(p.SRID())
	return out
}

// PolygonCentroid returns the mean of the ring vertices (lon, lat). The exact
// area centroid is unnecessary for nearest-neighbor matching at these scales.
func PolygonCentroid(p *geom.Polygon) (float64, float64) {
	flat := p.FlatCoords()
	n := len(flat) / 2
	if n == 0 {
		return 0, 0
	}
	var sx, sy float64
	for i := 0; i < len(flat); i += 2 {
		sx += flat[i]
		sy += flat[i+1]
	}
	return sx / float64(n), sy / float64(n)
}
