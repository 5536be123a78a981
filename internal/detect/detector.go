package detect

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/raster"
)

// Scene is one tile of input rasters sharing a bounding box. NDVI is computed
// from NIR and Red when not supplied. DEM is optional; when present it must
// match the index raster's dimensions.
type Scene struct {
	Red, Green, Blue, NIR *raster.Grid
	NDVI                  *raster.Grid
	DEM                   *raster.Grid
	BBox                  georef.BBox
	Sources               []string
}

// Candidate is a detected site: a closed WGS84 polygon with its suitability
// score and the statistics that produced it.
type Candidate struct {
	ID       string        `json:"id"`
	Polygon  *geom.Polygon `json:"-"`
	Lon      float64       `json:"lon"`
	Lat      float64       `json:"lat"`
	AreaM2   float64       `json:"area_m2"`
	MeanNDVI float64       `json:"ndvi_mean"`
	// MeanSlopeDeg and MeanHeightM are nil when no DEM was available.
	MeanSlopeDeg *float64 `json:"slope_deg,omitempty"`
	MeanHeightM  *float64 `json:"mean_height_m,omitempty"`
	Score        float64  `json:"suitability_score"`
	Class        string   `json:"class,omitempty"`
	Sources      []string `json:"source_datasets"`

	// OSM cross-validation, filled by the validate package. A distance of -1
	// means no station was considered.
	Validated    bool    `json:"osm_validated"`
	OSMDistanceM float64 `json:"osm_distance_m"`
	OSMName      string  `json:"osm_name,omitempty"`
}

// Result is the outcome of detecting over one scene.
type Result struct {
	Candidates     []Candidate
	Rejected       map[string]int
	MetersPerPixel float64
	MaskPixels     int
}

// Rejection reasons tallied in Result.Rejected.
const (
	RejectSize   = "size"
	RejectAspect = "aspect"
	RejectShape  = "shape"
	RejectSlope  = "slope"
	RejectHeight = "height"
)

// Detector runs the detection pipeline for one profile.
type Detector struct {
	profile Profile
	log     *zap.Logger
}

// New creates a Detector for the given profile.
func New(profile Profile) *Detector {
	return &Detector{
		profile: profile,
		log:     zap.L().With(zap.String("component", "detect"), zap.String("profile", profile.Name)),
	}
}

// Detect produces scored candidate polygons from a scene. An empty or
// all-zero index raster yields an empty result, not an error.
func (d *Detector) Detect(ctx context.Context, scene Scene) (*Result, error) {
	ndvi := scene.NDVI
	if ndvi == nil {
		if scene.NIR == nil || scene.Red == nil {
			return nil, eris.New("detect: scene has neither NDVI nor NIR/Red bands")
		}
		var err error
		ndvi, err = raster.NDVI(scene.NIR, scene.Red)
		if err != nil {
			return nil, err
		}
	}
	if err := scene.BBox.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		Rejected:       map[string]int{},
		MetersPerPixel: scene.BBox.MetersPerPixel(ndvi.W, ndvi.H),
	}
	if len(ndvi.Data) == 0 || ndvi.AllZero() {
		d.log.Warn("empty index raster, skipping scene", zap.Stringer("bbox", scene.BBox))
		return res, nil
	}

	mask, err := d.binarize(scene, ndvi)
	if err != nil {
		return nil, err
	}
	mask = d.cleanup(mask)
	res.MaskPixels = mask.Count()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "detect: canceled")
	}

	var slope *raster.Grid
	if scene.DEM != nil {
		if scene.DEM.W != ndvi.W || scene.DEM.H != ndvi.H {
			return nil, eris.Errorf("detect: DEM %dx%d does not match index raster %dx%d",
				scene.DEM.W, scene.DEM.H, ndvi.W, ndvi.H)
		}
		slope = raster.SlopeDegrees(scene.DEM, res.MetersPerPixel)
	}

	comps, labels := raster.Components(mask)
	d.log.Debug("contours extracted",
		zap.Int("components", len(comps)),
		zap.Float64("meters_per_pixel", res.MetersPerPixel),
	)

	pixelArea := res.MetersPerPixel * res.MetersPerPixel
	for _, comp := range comps {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "detect: canceled")
		}

		areaM2 := float64(comp.PixelCount) * pixelArea
		if areaM2 < d.profile.MinAreaM2 || (d.profile.MaxAreaM2 > 0 && areaM2 > d.profile.MaxAreaM2) {
			res.Rejected[RejectSize]++
			continue
		}

		aspect := comp.AspectRatio()
		if d.profile.MaxAspect > 0 && aspect > d.profile.MaxAspect {
			res.Rejected[RejectAspect]++
			continue
		}

		poly, err := georef.RingToPolygon(comp.Ring, scene.BBox, ndvi.W, ndvi.H)
		if err != nil {
			res.Rejected[RejectShape]++
			continue
		}

		cand := Candidate{
			Polygon:      poly,
			AreaM2:       areaM2,
			MeanNDVI:     raster.MaskedMean(ndvi, labels, comp.Label),
			Sources:      scene.Sources,
			OSMDistanceM: -1,
		}
		cand.Lon, cand.Lat = scene.BBox.PixelToLonLat(comp.CentroidX, comp.CentroidY, ndvi.W, ndvi.H)

		if slope != nil {
			s := raster.MaskedMean(slope, labels, comp.Label)
			h := raster.MaskedMean(scene.DEM, labels, comp.Label)
			cand.MeanSlopeDeg = &s
			cand.MeanHeightM = &h

			if d.profile.MaxSlopeDeg > 0 && s > d.profile.MaxSlopeDeg {
				res.Rejected[RejectSlope]++
				continue
			}
			if d.profile.MinHeightM > 0 && h < d.profile.MinHeightM {
				res.Rejected[RejectHeight]++
				continue
			}
		}

		cand.Score = d.score(&cand)
		cand.Class = d.classify(areaM2, aspect, cand.MeanNDVI)
		res.Candidates = append(res.Candidates, cand)
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Score > res.Candidates[j].Score
	})
	for i := range res.Candidates {
		res.Candidates[i].ID = fmt.Sprintf("%s_%d", d.profile.Name, i)
	}

	d.log.Info("scene processed",
		zap.Int("candidates", len(res.Candidates)),
		zap.Any("rejected", res.Rejected),
	)
	return res, nil
}

// binarize produces the initial mask per the profile's mask mode.
func (d *Detector) binarize(scene Scene, ndvi *raster.Grid) (*raster.Mask, error) {
	switch d.profile.Mask {
	case MaskOtsu:
		if scene.Red == nil || scene.Green == nil || scene.Blue == nil {
			return nil, eris.Errorf("detect: profile %s needs visible bands for otsu masking", d.profile.Name)
		}
		intensity, err := raster.Intensity(scene.Red, scene.Green, scene.Blue)
		if err != nil {
			return nil, err
		}
		score, err := raster.BuildingScore(intensity, ndvi)
		if err != nil {
			return nil, err
		}
		return raster.OtsuMask(score), nil
	case MaskRange:
		return raster.RangeMask(ndvi, d.profile.NDVILo, d.profile.NDVIHi), nil
	default:
		return nil, eris.Errorf("detect: unknown mask mode %q", d.profile.Mask)
	}
}

// cleanup applies the profile's morphological passes.
func (d *Detector) cleanup(m *raster.Mask) *raster.Mask {
	r := d.profile.KernelRadius
	m = raster.Close(m, r, d.profile.CloseIterations)
	m = raster.Open(m, r, d.profile.OpenIterations)
	if d.profile.ErodeIterations > 0 {
		m = raster.Erode(m, 1, d.profile.ErodeIterations)
	}
	return m
}

// score computes the weighted suitability score, clamped to [0, 1]. Without
// DEM statistics only the NDVI and size terms participate, renormalized.
func (d *Detector) score(c *Candidate) float64 {
	p := d.profile

	ndviScore := 1 - math.Abs(c.MeanNDVI-p.TargetNDVI)/p.NDVIScale
	ndviScore = clamp01(ndviScore)
	sizeScore := math.Min(c.AreaM2/p.SizeNormM2, 1)

	w := p.Weights
	if c.MeanSlopeDeg == nil {
		total := w.NDVI + w.Size
		if total <= 0 {
			return 0
		}
		return clamp01((w.NDVI*ndviScore + w.Size*sizeScore) / total)
	}

	slopeScore := clamp01(1 - *c.MeanSlopeDeg/p.SlopeNormDeg)
	heightScore := math.Min(*c.MeanHeightM/p.HeightNormM, 1)
	if heightScore < 0 {
		heightScore = 0
	}

	total := w.NDVI + w.Size + w.Slope + w.Height
	if total <= 0 {
		return 0
	}
	return clamp01((w.NDVI*ndviScore + w.Size*sizeScore + w.Slope*slopeScore + w.Height*heightScore) / total)
}

// classify matches a candidate against the profile's known facility classes.
func (d *Detector) classify(areaM2, aspect, meanNDVI float64) string {
	for _, spec := range d.profile.Classes {
		if areaM2 >= spec.MinAreaM2 && areaM2 <= spec.MaxAreaM2 &&
			aspect >= spec.MinAspect && aspect <= spec.MaxAspect &&
			meanNDVI >= spec.NDVILo && meanNDVI <= spec.NDVIHi {
			return spec.Name
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
