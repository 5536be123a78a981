package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	geom "github.com/twpayne/go-geom"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
)

func TestAggregateGrid(t *testing.T) {
	cfg = testConfig()
	bbox := georef.BBox{West: 6.7, South: 51.1, East: 6.75, North: 51.15}

	// A small square near the box center.
	lon, lat := bbox.Center()
	d := 0.0005
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{lon - d, lat - d}, {lon + d, lat - d}, {lon + d, lat + d}, {lon - d, lat + d}, {lon - d, lat - d},
	}})

	candidates := []detect.Candidate{
		{ID: "equipment_0", Polygon: poly, Lon: lon, Lat: lat, Score: 0.8, OSMDistanceM: -1},
	}

	data, cells, err := aggregateGrid(bbox, candidates, 500, true)
	require.NoError(t, err)
	assert.Greater(t, cells, 50)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string `json:"id"`
			Properties struct {
				Value float64 `json:"value"`
				Count int     `json:"count"`
			} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)

	// Empty cells are omitted; the occupied ones carry the full score and
	// the centroid lands in exactly one of them.
	require.NotEmpty(t, fc.Features)
	var total float64
	var count int
	for _, f := range fc.Features {
		total += f.Properties.Value
		count += f.Properties.Count
	}
	assert.InDelta(t, 0.8, total, 1e-6)
	assert.Equal(t, 1, count)
}

func TestProjectPolygon(t *testing.T) {
	proj := georef.NewProjection(6.7, 51.1)
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{6.7, 51.1}, {6.71, 51.1}, {6.71, 51.11}, {6.7, 51.11}, {6.7, 51.1},
	}})

	projected := projectPolygon(proj, poly)
	coords := projected.LinearRing(0).Coords()
	require.Len(t, coords, 5)

	// Origin maps to zero; the far corner is ~700m east, ~1113m north.
	assert.InDelta(t, 0, coords[0][0], 1e-9)
	assert.InDelta(t, 0, coords[0][1], 1e-9)
	assert.InDelta(t, 699, coords[2][0], 2)
	assert.InDelta(t, 1113, coords[2][1], 1)
}
