package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansports/fieldscout/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Copernicus: config.CopernicusConfig{
			MaxCloudCover: 20,
			LookbackDays:  30,
			ResolutionM:   10,
			TileSizePx:    1024,
		},
		Detect: config.DetectConfig{MaxCandidates: 200, Workers: 4},
		Validate: config.ValidateConfig{
			MaxDistanceM: 200,
			Boost:        0.3,
			Cap:          0.95,
			Penalty:      0.7,
			MinScore:     0.3,
		},
		Export: config.ExportConfig{Dir: "out", Precision: 5},
		Grid:   config.GridConfig{CellSizeM: 500, AreaWeighted: true},
	}
}

func TestParseBBox(t *testing.T) {
	bbox, err := parseBBox("6.7, 51.1, 6.95, 51.35")
	require.NoError(t, err)
	assert.Equal(t, 6.7, bbox.West)
	assert.Equal(t, 51.35, bbox.North)

	_, err = parseBBox("6.7,51.1,6.95")
	require.Error(t, err)

	_, err = parseBBox("a,b,c,d")
	require.Error(t, err)

	// West/east swapped.
	_, err = parseBBox("6.95,51.1,6.7,51.35")
	require.Error(t, err)
}

func TestResolveArea(t *testing.T) {
	cfg = testConfig()

	key, bbox, err := resolveArea("Düsseldorf", "")
	require.NoError(t, err)
	assert.Equal(t, "dusseldorf", key)
	assert.InDelta(t, 6.6895, bbox.West, 1e-9)

	key, bbox, err = resolveArea("", "6.7,51.1,6.95,51.35")
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Equal(t, 51.1, bbox.South)

	_, _, err = resolveArea("dusseldorf", "6.7,51.1,6.95,51.35")
	require.Error(t, err)

	_, _, err = resolveArea("", "")
	require.Error(t, err)
}
