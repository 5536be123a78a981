package main

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	cfg = testConfig()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(newRouter(st))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServe_RunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/runs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/map/nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServe_ListAndGeoJSON(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	bbox := georef.BBox{West: 6.7, South: 51.1, East: 6.95, North: 51.35}
	poly, err := georef.RingToPolygon(
		[]image.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}},
		bbox, 100, 100)
	require.NoError(t, err)

	run, err := st.CreateRun(ctx, "equipment", "dusseldorf", bbox)
	require.NoError(t, err)
	require.NoError(t, st.SaveCandidates(ctx, run.ID, []detect.Candidate{
		{ID: "equipment_0", Polygon: poly, Lon: 6.75, Lat: 51.2, Score: 0.8, OSMDistanceM: -1},
	}))
	require.NoError(t, st.FinishRun(ctx, run.ID, 1, nil))

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []store.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusComplete, runs[0].Status)

	geoResp, err := http.Get(srv.URL + "/api/runs/" + run.ID + "/geojson")
	require.NoError(t, err)
	defer geoResp.Body.Close()
	require.Equal(t, http.StatusOK, geoResp.StatusCode)
	assert.Equal(t, "application/geo+json", geoResp.Header.Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	require.NoError(t, json.NewDecoder(geoResp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "equipment_0", fc.Features[0].ID)
}

func TestServe_Map(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	bbox := georef.BBox{West: 6.7, South: 51.1, East: 6.95, North: 51.35}
	run, err := st.CreateRun(ctx, "rooftop", "", bbox)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/map/" + run.ID)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
