package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/raster"
	"github.com/urbansports/fieldscout/internal/validate"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// Runs the demo's exact inputs through the pipeline: every implanted pad must
// come out as a candidate, and the pad on the Volksgarten station must
// cross-validate.
func TestDemoScene_ProducesCandidates(t *testing.T) {
	cfg = testConfig()

	profile, err := loadProfile("equipment")
	require.NoError(t, err)

	ndvi := raster.SyntheticNDVI(demoSize, demoSize, 42, demoSignatures)
	res, err := detect.New(profile).Detect(context.Background(), detect.Scene{
		NDVI:    ndvi,
		BBox:    demoBBox,
		Sources: []string{"synthetic"},
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, len(demoSignatures))

	for _, c := range res.Candidates {
		assert.GreaterOrEqual(t, c.AreaM2, profile.MinAreaM2)
		assert.LessOrEqual(t, c.AreaM2, profile.MaxAreaM2)
		assert.InDelta(t, 0.2, c.MeanNDVI, 0.1)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}

	candidates, summary := validate.Against(res.Candidates, overpass.FallbackStations(), validate.Options{
		MaxDistanceM: cfg.Validate.MaxDistanceM,
		Boost:        cfg.Validate.Boost,
		Cap:          cfg.Validate.Cap,
		Penalty:      cfg.Validate.Penalty,
		MinScore:     cfg.Validate.MinScore,
	})
	require.Len(t, candidates, len(demoSignatures))
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Dropped)

	var volksgarten *detect.Candidate
	for i := range candidates {
		if candidates[i].Validated {
			volksgarten = &candidates[i]
		}
	}
	require.NotNil(t, volksgarten)
	assert.Equal(t, "Volksgarten Fitness (Fallback)", volksgarten.OSMName)
	assert.LessOrEqual(t, volksgarten.OSMDistanceM, cfg.Validate.MaxDistanceM)
}
