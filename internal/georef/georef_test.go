package georef

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlinMitte = BBox{West: 13.35, South: 52.49, East: 13.45, North: 52.54}

func TestBBox_Validate(t *testing.T) {
	assert.NoError(t, berlinMitte.Validate())
	assert.Error(t, BBox{West: 10, South: 50, East: 9, North: 51}.Validate())
	assert.Error(t, BBox{West: -200, South: 50, East: 10, North: 51}.Validate())
}

func TestBBox_Split_CoversWholeBox(t *testing.T) {
	b := BBox{West: 13.0, South: 52.0, East: 13.5, North: 52.3}
	tiles := b.Split(0.2)
	require.Len(t, tiles, 3*2)

	// Tiles at the far edge are clamped to the box.
	last := tiles[len(tiles)-1]
	assert.Equal(t, b.East, last.East)
	assert.Equal(t, b.North, last.North)

	for _, tile := range tiles {
		assert.NoError(t, tile.Validate())
	}
}

func TestBBox_Split_NonPositiveSize(t *testing.T) {
	tiles := berlinMitte.Split(0)
	require.Len(t, tiles, 1)
	assert.Equal(t, berlinMitte, tiles[0])
}

func TestBBox_PixelRoundTrip(t *testing.T) {
	w, h := 1000, 500
	lon, lat := berlinMitte.PixelToLonLat(250, 125, w, h)
	px, py := berlinMitte.LonLatToPixel(lon, lat, w, h)
	assert.Equal(t, 250, px)
	assert.Equal(t, 125, py)

	// Pixel (0,0) is the northwest corner.
	lon, lat = berlinMitte.PixelToLonLat(0, 0, w, h)
	assert.Equal(t, berlinMitte.West, lon)
	assert.Equal(t, berlinMitte.North, lat)
}

func TestBBox_MetersPerPixel(t *testing.T) {
	// Berlin Mitte at 2500x2500: roughly 1.5-3.5 m/pixel.
	mpp := berlinMitte.MetersPerPixel(2500, 2500)
	assert.Greater(t, mpp, 1.0)
	assert.Less(t, mpp, 4.0)

	assert.Zero(t, berlinMitte.MetersPerPixel(0, 100))
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Berlin to Duesseldorf is about 478 km.
	d := Haversine(52.52, 13.405, 51.2277, 6.7735)
	assert.InDelta(t, 478000, d, 10000)

	assert.Zero(t, Haversine(52.5, 13.4, 52.5, 13.4))
}

func TestUTMEPSG(t *testing.T) {
	assert.Equal(t, 32633, UTMEPSG(13.4, 52.5))  // Berlin
	assert.Equal(t, 32632, UTMEPSG(6.77, 51.22)) // Duesseldorf
	assert.Equal(t, 32723, UTMEPSG(-46.6, -23.5))
}

func TestRingToPolygon_ClosesRing(t *testing.T) {
	ring := []image.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}}
	poly, err := RingToPolygon(ring, berlinMitte, 100, 100)
	require.NoError(t, err)

	flat := poly.FlatCoords()
	require.Equal(t, 10, len(flat))
	assert.Equal(t, flat[0], flat[len(flat)-2])
	assert.Equal(t, flat[1], flat[len(flat)-1])
	assert.Equal(t, 4326, poly.SRID())
}

func TestRingToPolygon_TooFewPoints(t *testing.T) {
	_, err := RingToPolygon([]image.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}, berlinMitte, 100, 100)
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestRoundPolygon(t *testing.T) {
	ring := []image.Point{{X: 1, Y: 1}, {X: 7, Y: 1}, {X: 7, Y: 9}, {X: 1, Y: 9}}
	poly, err := RingToPolygon(ring, berlinMitte, 777, 777)
	require.NoError(t, err)

	rounded := RoundPolygon(poly, 5)
	for _, v := range rounded.FlatCoords() {
		scaled := v * 1e5
		assert.InDelta(t, scaled, float64(int64(scaled+0.5)), 1e-6)
	}
}

func TestPolygonCentroid(t *testing.T) {
	ring := []image.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	poly, err := RingToPolygon(ring, BBox{West: 0, South: 0, East: 10, North: 10}, 10, 10)
	require.NoError(t, err)

	lon, lat := PolygonCentroid(poly)
	assert.InDelta(t, 5.0, lon, 1.5)
	assert.InDelta(t, 5.0, lat, 1.5)
}
