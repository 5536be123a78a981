// Package georef converts between raster pixel space and WGS84 geographic
// coordinates and builds geometries for detection candidates.
package georef

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// earthMetersPerDegree is the approximate length of one degree of latitude.
const earthMetersPerDegree = 111320.0

// BBox is a geographic bounding box in WGS84, [west, south, east, north].
type BBox struct {
	West  float64 `json:"west" mapstructure:"west"`
	South float64 `json:"south" mapstructure:"south"`
	East  float64 `json:"east" mapstructure:"east"`
	North float64 `json:"north" mapstructure:"north"`
}

// Validate checks ordering and coordinate ranges.
func (b BBox) Validate() error {
	if b.West >= b.East || b.South >= b.North {
		return eris.Errorf("georef: degenerate bbox %s", b)
	}
	if b.West < -180 || b.East > 180 || b.South < -90 || b.North > 90 {
		return eris.Errorf("georef: bbox out of range %s", b)
	}
	return nil
}

// Center returns the midpoint (lon, lat).
func (b BBox) Center() (float64, float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

// Slice returns [west, south, east, north], the order the imagery APIs use.
func (b BBox) Slice() []float64 {
	return []float64{b.West, b.South, b.East, b.North}
}

func (b BBox) String() string {
	return fmt.Sprintf("[%.4f, %.4f, %.4f, %.4f]", b.West, b.South, b.East, b.North)
}

// Split partitions the box into tiles at most sizeDeg degrees on a side,
// preserving full coverage. A non-positive size yields the box itself.
func (b BBox) Split(sizeDeg float64) []BBox {
	if sizeDeg <= 0 {
		return []BBox{b}
	}
	var tiles []BBox
	for lat := b.South; lat < b.North; lat += sizeDeg {
		for lon := b.West; lon < b.East; lon += sizeDeg {
			tiles = append(tiles, BBox{
				West:  lon,
				South: lat,
				East:  math.Min(lon+sizeDeg, b.East),
				North: math.Min(lat+sizeDeg, b.North),
			})
		}
	}
	return tiles
}

// MetersPerPixel estimates the average ground resolution of a w×h raster
// covering the box, applying the cosine correction for longitude.
func (b BBox) MetersPerPixel(w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	midLat := (b.North + b.South) / 2
	mx := (b.East - b.West) * earthMetersPerDegree * math.Cos(midLat*math.Pi/180) / float64(w)
	my := (b.North - b.South) * earthMetersPerDegree / float64(h)
	return (mx + my) / 2
}

// PixelToLonLat maps raster coordinates to geographic coordinates. Row 0 is
// the northern edge.
func (b BBox) PixelToLonLat(px, py float64, w, h int) (float64, float64) {
	lon := b.West + px/float64(w)*(b.East-b.West)
	lat := b.North - py/float64(h)*(b.North-b.South)
	return lon, lat
}

// LonLatToPixel maps geographic coordinates to raster coordinates.
func (b BBox) LonLatToPixel(lon, lat float64, w, h int) (int, int) {
	px := int((lon - b.West) / (b.East - b.West) * float64(w))
	py := int((b.North - lat) / (b.North - b.South) * float64(h))
	return px, py
}

// Contains reports whether the point lies inside the box.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// UTMEPSG picks the WGS84 UTM zone EPSG code for a lon/lat centroid.
func UTMEPSG(lon, lat float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if lat >= 0 {
		return 32600 + zone
	}
	return 32700 + zone
}
