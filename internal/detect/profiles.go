// Package detect implements the candidate detection pipeline: spectral
// thresholding, morphological cleanup, contour extraction, geometric and
// terrain filtering, and suitability scoring.
package detect

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var builtinProfilesYAML []byte

// Mask modes.
const (
	MaskOtsu  = "otsu"
	MaskRange = "range"
)

// Weights are the linear scoring coefficients. The slope and height terms
// participate only when a DEM is available.
type Weights struct {
	NDVI   float64 `yaml:"ndvi" mapstructure:"ndvi"`
	Size   float64 `yaml:"size" mapstructure:"size"`
	Slope  float64 `yaml:"slope" mapstructure:"slope"`
	Height float64 `yaml:"height" mapstructure:"height"`
}

// ClassSpec describes a known facility type used to classify sports-field
// candidates by area, elongation and vegetation signature.
type ClassSpec struct {
	Name      string  `yaml:"name" mapstructure:"name"`
	MinAreaM2 float64 `yaml:"min_area_m2" mapstructure:"min_area_m2"`
	MaxAreaM2 float64 `yaml:"max_area_m2" mapstructure:"max_area_m2"`
	MinAspect float64 `yaml:"min_aspect" mapstructure:"min_aspect"`
	MaxAspect float64 `yaml:"max_aspect" mapstructure:"max_aspect"`
	NDVILo    float64 `yaml:"ndvi_lo" mapstructure:"ndvi_lo"`
	NDVIHi    float64 `yaml:"ndvi_hi" mapstructure:"ndvi_hi"`
}

// Profile is a named detection parameter set.
type Profile struct {
	Name string `yaml:"-"`

	// Mask selects the binarization: "otsu" over the building score (needs
	// visible bands) or "range" over NDVI directly.
	Mask   string  `yaml:"mask" mapstructure:"mask"`
	NDVILo float64 `yaml:"ndvi_lo" mapstructure:"ndvi_lo"`
	NDVIHi float64 `yaml:"ndvi_hi" mapstructure:"ndvi_hi"`

	KernelRadius    float64 `yaml:"kernel_radius" mapstructure:"kernel_radius"`
	CloseIterations int     `yaml:"close_iterations" mapstructure:"close_iterations"`
	OpenIterations  int     `yaml:"open_iterations" mapstructure:"open_iterations"`
	ErodeIterations int     `yaml:"erode_iterations" mapstructure:"erode_iterations"`

	MinAreaM2 float64 `yaml:"min_area_m2" mapstructure:"min_area_m2"`
	MaxAreaM2 float64 `yaml:"max_area_m2" mapstructure:"max_area_m2"`
	// MaxAspect rejects elongated shapes; 0 disables the filter.
	MaxAspect float64 `yaml:"max_aspect" mapstructure:"max_aspect"`

	// MaxSlopeDeg and MinHeightM gate on DEM statistics; 0 disables.
	MaxSlopeDeg float64 `yaml:"max_slope_deg" mapstructure:"max_slope_deg"`
	MinHeightM  float64 `yaml:"min_height_m" mapstructure:"min_height_m"`

	// Scoring normalization.
	TargetNDVI   float64 `yaml:"target_ndvi" mapstructure:"target_ndvi"`
	NDVIScale    float64 `yaml:"ndvi_scale" mapstructure:"ndvi_scale"`
	SizeNormM2   float64 `yaml:"size_norm_m2" mapstructure:"size_norm_m2"`
	SlopeNormDeg float64 `yaml:"slope_norm_deg" mapstructure:"slope_norm_deg"`
	HeightNormM  float64 `yaml:"height_norm_m" mapstructure:"height_norm_m"`

	Weights Weights     `yaml:"weights" mapstructure:"weights"`
	Classes []ClassSpec `yaml:"classes" mapstructure:"classes"`
}

// Validate checks a profile for internally consistent parameters.
func (p Profile) Validate() error {
	switch p.Mask {
	case MaskOtsu, MaskRange:
	default:
		return eris.Errorf("detect: profile %s: unknown mask mode %q", p.Name, p.Mask)
	}
	if p.Mask == MaskRange && p.NDVILo >= p.NDVIHi {
		return eris.Errorf("detect: profile %s: empty NDVI window [%g, %g]", p.Name, p.NDVILo, p.NDVIHi)
	}
	if p.MinAreaM2 < 0 || (p.MaxAreaM2 > 0 && p.MaxAreaM2 <= p.MinAreaM2) {
		return eris.Errorf("detect: profile %s: invalid area range [%g, %g]", p.Name, p.MinAreaM2, p.MaxAreaM2)
	}
	if p.NDVIScale <= 0 {
		return eris.Errorf("detect: profile %s: ndvi_scale must be positive", p.Name)
	}
	if p.SizeNormM2 <= 0 {
		return eris.Errorf("detect: profile %s: size_norm_m2 must be positive", p.Name)
	}
	return nil
}

// applyDefaults fills zero-valued normalization constants.
func (p *Profile) applyDefaults() {
	if p.SlopeNormDeg == 0 {
		p.SlopeNormDeg = 10
	}
	if p.HeightNormM == 0 {
		p.HeightNormM = 50
	}
	if p.KernelRadius == 0 {
		p.KernelRadius = 1
	}
}

// BuiltinProfiles returns the embedded profile set keyed by name.
func BuiltinProfiles() (map[string]Profile, error) {
	return parseProfiles(builtinProfilesYAML)
}

// LoadProfiles reads a profiles file and overlays it on the builtins:
// profiles present in the file replace same-named builtins.
func LoadProfiles(path string) (map[string]Profile, error) {
	base, err := BuiltinProfiles()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "detect: read profiles %s", path)
	}
	extra, err := parseProfiles(data)
	if err != nil {
		return nil, err
	}
	for name, p := range extra {
		base[name] = p
	}
	return base, nil
}

func parseProfiles(data []byte) (map[string]Profile, error) {
	raw := map[string]Profile{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "detect: parse profiles")
	}
	out := make(map[string]Profile, len(raw))
	for name, p := range raw {
		p.Name = name
		p.applyDefaults()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}
