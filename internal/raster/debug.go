package raster

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rotisserie/eris"
)

// Heatmap renders a grid as a false-color image for visual inspection of
// index rasters. Low values map to brown, high values to green.
func Heatmap(g *Grid) *image.NRGBA {
	low, _ := colorful.Hex("#8c510a")
	high, _ := colorful.Hex("#01665e")
	norm := g.Normalized()
	img := image.NewNRGBA(image.Rect(0, 0, g.W, g.H))
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			c := low.BlendLuv(high, norm.At(x, y)).Clamped()
			r, gg, b := c.RGB255()
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: gg, B: b, A: 255})
		}
	}
	return img
}

// SaveHeatmap writes the false-color render of a grid to path. The format is
// inferred from the extension.
func SaveHeatmap(g *Grid, path string) error {
	if err := imaging.Save(Heatmap(g), path); err != nil {
		return eris.Wrapf(err, "raster: save heatmap %s", path)
	}
	return nil
}

// SaveMask writes a binary mask to path as a grayscale image.
func SaveMask(m *Mask, path string) error {
	if err := imaging.Save(m.Gray(), path); err != nil {
		return eris.Wrapf(err, "raster: save mask %s", path)
	}
	return nil
}
