package render

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Gradient stops for suitability scores, low to high.
var scoreStops = []struct {
	pos   float64
	color colorful.Color
}{
	{0.0, colorful.Color{R: 0.84, G: 0.19, B: 0.15}},
	{0.5, colorful.Color{R: 0.99, G: 0.75, B: 0.18}},
	{1.0, colorful.Color{R: 0.10, G: 0.62, B: 0.27}},
}

// ScoreColor maps a suitability score in [0, 1] to a hex color along the
// red/amber/green gradient. Blending happens in Lab space so midpoints stay
// perceptually even.
func ScoreColor(score float64) string {
	if score <= scoreStops[0].pos {
		return scoreStops[0].color.Hex()
	}
	last := scoreStops[len(scoreStops)-1]
	if score >= last.pos {
		return last.color.Hex()
	}
	for i := 0; i < len(scoreStops)-1; i++ {
		lo, hi := scoreStops[i], scoreStops[i+1]
		if score > hi.pos {
			continue
		}
		t := (score - lo.pos) / (hi.pos - lo.pos)
		return lo.color.BlendLab(hi.color, t).Clamped().Hex()
	}
	return last.color.Hex()
}
