package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/raster"
)

// testBBox covers roughly 1km x 1km, giving ~10 m/pixel on a 100x100 grid.
var testBBox = georef.BBox{West: 13.0, South: 52.0, East: 13.0147, North: 52.009}

// testProfile detects low-NDVI pads in the 2000-30000 m2 range.
func testProfile() Profile {
	p := Profile{
		Name:            "pad",
		Mask:            MaskRange,
		NDVILo:          0.05,
		NDVIHi:          0.35,
		KernelRadius:    1,
		CloseIterations: 1,
		OpenIterations:  1,
		MinAreaM2:       2000,
		MaxAreaM2:       30000,
		MaxAspect:       4,
		TargetNDVI:      0.2,
		NDVIScale:       0.3,
		SizeNormM2:      10000,
		Weights:         Weights{NDVI: 0.5, Size: 0.5},
	}
	p.applyDefaults()
	return p
}

// sceneWithPad builds a vegetated scene with one low-NDVI block.
func sceneWithPad() Scene {
	ndvi := raster.NewGrid(100, 100)
	ndvi.Fill(0.6)
	for y := 40; y < 52; y++ {
		for x := 30; x < 40; x++ {
			ndvi.Set(x, y, 0.2)
		}
	}
	return Scene{NDVI: ndvi, BBox: testBBox, Sources: []string{"S2_L2A"}}
}

func TestDetector_FindsImplantedPad(t *testing.T) {
	d := New(testProfile())
	res, err := d.Detect(context.Background(), sceneWithPad())
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, "pad_0", c.ID)
	assert.InDelta(t, 0.2, c.MeanNDVI, 0.02)
	assert.InDelta(t, 12000, c.AreaM2, 3000)
	assert.True(t, testBBox.Contains(c.Lon, c.Lat))
	assert.GreaterOrEqual(t, c.Score, 0.0)
	assert.LessOrEqual(t, c.Score, 1.0)
	assert.Equal(t, []string{"S2_L2A"}, c.Sources)
	assert.Nil(t, c.MeanSlopeDeg)

	// Polygon is closed.
	flat := c.Polygon.FlatCoords()
	assert.Equal(t, flat[0], flat[len(flat)-2])
	assert.Equal(t, flat[1], flat[len(flat)-1])
}

func TestDetector_SizeFilter(t *testing.T) {
	p := testProfile()
	p.MinAreaM2 = 50000 // larger than the pad
	d := New(p)

	res, err := d.Detect(context.Background(), sceneWithPad())
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 1, res.Rejected[RejectSize])
}

func TestDetector_AspectFilter(t *testing.T) {
	ndvi := raster.NewGrid(100, 100)
	ndvi.Fill(0.6)
	// A 60x4 strip: aspect 60/(4+1) = 12.
	for y := 50; y < 54; y++ {
		for x := 20; x < 80; x++ {
			ndvi.Set(x, y, 0.2)
		}
	}
	p := testProfile()
	p.MinAreaM2 = 1000
	d := New(p)

	res, err := d.Detect(context.Background(), Scene{NDVI: ndvi, BBox: testBBox})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 1, res.Rejected[RejectAspect])
}

func TestDetector_DEMStatistics(t *testing.T) {
	scene := sceneWithPad()
	scene.DEM = raster.NewGrid(100, 100)
	scene.DEM.Fill(20)

	p := testProfile()
	p.MaxSlopeDeg = 15
	p.MinHeightM = 8
	p.Weights = Weights{NDVI: 0.3, Size: 0.3, Slope: 0.3, Height: 0.1}
	d := New(p)

	res, err := d.Detect(context.Background(), scene)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	require.NotNil(t, c.MeanSlopeDeg)
	require.NotNil(t, c.MeanHeightM)
	assert.InDelta(t, 0.0, *c.MeanSlopeDeg, 1e-9)
	assert.InDelta(t, 20.0, *c.MeanHeightM, 1e-9)
	// Flat 20m terrain: height term 20/50, others saturate.
	assert.InDelta(t, 0.94, c.Score, 0.02)
}

func TestDetector_HeightGate(t *testing.T) {
	scene := sceneWithPad()
	scene.DEM = raster.NewGrid(100, 100)
	scene.DEM.Fill(2)

	p := testProfile()
	p.MinHeightM = 8
	d := New(p)

	res, err := d.Detect(context.Background(), scene)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 1, res.Rejected[RejectHeight])
}

func TestDetector_SlopeGate(t *testing.T) {
	scene := sceneWithPad()
	scene.DEM = raster.NewGrid(100, 100)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			scene.DEM.Set(x, y, float64(x)*20) // ~63 degree slope at 10m/pixel
		}
	}

	p := testProfile()
	p.MaxSlopeDeg = 15
	d := New(p)

	res, err := d.Detect(context.Background(), scene)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 1, res.Rejected[RejectSlope])
}

func TestDetector_DEMDimensionMismatch(t *testing.T) {
	scene := sceneWithPad()
	scene.DEM = raster.NewGrid(50, 50)

	_, err := New(testProfile()).Detect(context.Background(), scene)
	require.Error(t, err)
}

func TestDetector_SortedByScore(t *testing.T) {
	ndvi := raster.NewGrid(100, 100)
	ndvi.Fill(0.6)
	// A large pad and a small one: the larger gets the higher size score.
	for y := 10; y < 24; y++ {
		for x := 10; x < 24; x++ {
			ndvi.Set(x, y, 0.2)
		}
	}
	for y := 60; y < 67; y++ {
		for x := 60; x < 67; x++ {
			ndvi.Set(x, y, 0.2)
		}
	}
	d := New(testProfile())

	res, err := d.Detect(context.Background(), Scene{NDVI: ndvi, BBox: testBBox})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.GreaterOrEqual(t, res.Candidates[0].Score, res.Candidates[1].Score)
	assert.Greater(t, res.Candidates[0].AreaM2, res.Candidates[1].AreaM2)
	assert.Equal(t, "pad_0", res.Candidates[0].ID)
	assert.Equal(t, "pad_1", res.Candidates[1].ID)
}

func TestDetector_AllZeroSceneYieldsNoCandidates(t *testing.T) {
	scene := Scene{NDVI: raster.NewGrid(100, 100), BBox: testBBox}
	res, err := New(testProfile()).Detect(context.Background(), scene)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestDetector_OtsuRequiresVisibleBands(t *testing.T) {
	p := testProfile()
	p.Mask = MaskOtsu
	_, err := New(p).Detect(context.Background(), sceneWithPad())
	require.Error(t, err)
}

func TestDetector_MissingBands(t *testing.T) {
	_, err := New(testProfile()).Detect(context.Background(), Scene{BBox: testBBox})
	require.Error(t, err)
}

func TestDetector_OtsuPipelineWithBands(t *testing.T) {
	w, h := 100, 100
	red := raster.NewGrid(w, h)
	green := raster.NewGrid(w, h)
	blue := raster.NewGrid(w, h)
	nir := raster.NewGrid(w, h)
	// Dark vegetation everywhere, one bright low-NDVI block (a rooftop).
	red.Fill(0.05)
	green.Fill(0.08)
	blue.Fill(0.04)
	nir.Fill(0.5)
	for y := 40; y < 52; y++ {
		for x := 30; x < 42; x++ {
			red.Set(x, y, 0.4)
			green.Set(x, y, 0.4)
			blue.Set(x, y, 0.38)
			nir.Set(x, y, 0.42)
		}
	}

	p := testProfile()
	p.Mask = MaskOtsu
	p.TargetNDVI = 0
	p.NDVIScale = 0.5
	d := New(p)

	res, err := d.Detect(context.Background(), Scene{
		Red: red, Green: green, Blue: blue, NIR: nir, BBox: testBBox,
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.InDelta(t, 14400, res.Candidates[0].AreaM2, 4000)
}

func TestDetector_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testProfile()).Detect(ctx, sceneWithPad())
	require.Error(t, err)
}

func TestBuiltinProfiles(t *testing.T) {
	profiles, err := BuiltinProfiles()
	require.NoError(t, err)

	for _, name := range []string{"rooftop", "equipment", "sportsfield"} {
		p, ok := profiles[name]
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name)
		assert.NoError(t, p.Validate())
	}

	rooftop := profiles["rooftop"]
	assert.Equal(t, MaskOtsu, rooftop.Mask)
	assert.Equal(t, 400.0, rooftop.MinAreaM2)
	assert.Equal(t, 15.0, rooftop.MaxSlopeDeg)

	field := profiles["sportsfield"]
	assert.NotEmpty(t, field.Classes)
}

func TestLoadProfiles_OverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := []byte("equipment:\n  mask: range\n  ndvi_lo: 0.1\n  ndvi_hi: 0.3\n  min_area_m2: 99\n  max_area_m2: 500\n  target_ndvi: 0.2\n  ndvi_scale: 0.3\n  size_norm_m2: 200\n  weights:\n    ndvi: 0.5\n    size: 0.5\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, 99.0, profiles["equipment"].MinAreaM2)
	// Builtins not named in the file stay intact.
	assert.Equal(t, 400.0, profiles["rooftop"].MinAreaM2)
}

func TestProfile_Validate(t *testing.T) {
	p := testProfile()
	assert.NoError(t, p.Validate())

	bad := p
	bad.Mask = "magic"
	assert.Error(t, bad.Validate())

	bad = p
	bad.NDVILo, bad.NDVIHi = 0.5, 0.1
	assert.Error(t, bad.Validate())

	bad = p
	bad.NDVIScale = 0
	assert.Error(t, bad.Validate())
}

func TestDetector_Classify(t *testing.T) {
	p := testProfile()
	p.Classes = []ClassSpec{{
		Name: "football_field", MinAreaM2: 4000, MaxAreaM2: 12000,
		MinAspect: 1.0, MaxAspect: 2.0, NDVILo: 0.1, NDVIHi: 0.3,
	}}
	d := New(p)
	assert.Equal(t, "football_field", d.classify(8000, 1.5, 0.2))
	assert.Equal(t, "", d.classify(300, 1.5, 0.2))
}
