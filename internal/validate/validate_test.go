package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

var volksgarten = overpass.Station{
	OSMID: 101, Name: "Volksgarten Fitness", Lat: 51.2186, Lon: 6.7711,
}

func TestAgainst_BoostsNearbyCandidate(t *testing.T) {
	// ~50m east of the station.
	candidates := []detect.Candidate{{ID: "c1", Lat: 51.2186, Lon: 6.77182, Score: 0.6}}

	kept, sum := Against(candidates, []overpass.Station{volksgarten}, Options{})
	require.Len(t, kept, 1)
	assert.Equal(t, 1, sum.Matched)

	c := kept[0]
	assert.True(t, c.Validated)
	assert.Equal(t, "Volksgarten Fitness", c.OSMName)
	assert.InDelta(t, 0.9, c.Score, 1e-9)
	assert.Less(t, c.OSMDistanceM, 100.0)
}

func TestAgainst_CapsBoostedScore(t *testing.T) {
	candidates := []detect.Candidate{{ID: "c1", Lat: 51.2186, Lon: 6.7711, Score: 0.9}}

	kept, _ := Against(candidates, []overpass.Station{volksgarten}, Options{})
	require.Len(t, kept, 1)
	assert.InDelta(t, 0.95, kept[0].Score, 1e-9)
}

func TestAgainst_PenalizesDistantCandidate(t *testing.T) {
	// ~2km away.
	candidates := []detect.Candidate{{ID: "c1", Lat: 51.2366, Lon: 6.7711, Score: 0.8}}

	kept, sum := Against(candidates, []overpass.Station{volksgarten}, Options{})
	require.Len(t, kept, 1)
	assert.Equal(t, 1, sum.Penalized)
	assert.False(t, kept[0].Validated)
	assert.Empty(t, kept[0].OSMName)
	assert.InDelta(t, 0.56, kept[0].Score, 1e-9)
}

func TestAgainst_DropsLowScores(t *testing.T) {
	candidates := []detect.Candidate{
		{ID: "weak", Lat: 51.3, Lon: 6.9, Score: 0.35},  // 0.245 after penalty
		{ID: "strong", Lat: 51.3, Lon: 6.9, Score: 0.8}, // 0.56 after penalty
	}

	kept, sum := Against(candidates, []overpass.Station{volksgarten}, Options{})
	require.Len(t, kept, 1)
	assert.Equal(t, "strong", kept[0].ID)
	assert.Equal(t, 1, sum.Dropped)
}

func TestAgainst_NoStations(t *testing.T) {
	candidates := []detect.Candidate{{ID: "c1", Lat: 51.22, Lon: 6.77, Score: 0.8}}

	kept, sum := Against(candidates, nil, Options{})
	require.Len(t, kept, 1)
	assert.Equal(t, 1, sum.Penalized)
	assert.False(t, kept[0].Validated)
	assert.Equal(t, -1.0, kept[0].OSMDistanceM)
}

func TestAgainst_PicksNearestStation(t *testing.T) {
	far := overpass.Station{OSMID: 202, Name: "Florapark Fitness", Lat: 51.2547, Lon: 6.7858}
	candidates := []detect.Candidate{{ID: "c1", Lat: 51.2187, Lon: 6.7712, Score: 0.5}}

	kept, _ := Against(candidates, []overpass.Station{far, volksgarten}, Options{})
	require.Len(t, kept, 1)
	assert.Equal(t, "Volksgarten Fitness", kept[0].OSMName)
}

func TestAgainst_CustomOptions(t *testing.T) {
	candidates := []detect.Candidate{{ID: "c1", Lat: 51.2186, Lon: 6.7711, Score: 0.5}}

	kept, _ := Against(candidates, []overpass.Station{volksgarten}, Options{
		Boost: 0.1, Cap: 0.55,
	})
	require.Len(t, kept, 1)
	assert.InDelta(t, 0.55, kept[0].Score, 1e-9)
}
