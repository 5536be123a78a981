package raster

import (
	"image"

	"github.com/anthonynsimon/bild/effect"
)

// Dilate grows foreground regions by the given radius, iterated n times.
func Dilate(m *Mask, radius float64, iterations int) *Mask {
	return applyMorph(m, iterations, func(img image.Image) image.Image {
		return effect.Dilate(img, radius)
	})
}

// Erode shrinks foreground regions by the given radius, iterated n times.
func Erode(m *Mask, radius float64, iterations int) *Mask {
	return applyMorph(m, iterations, func(img image.Image) image.Image {
		return effect.Erode(img, radius)
	})
}

// Close fills small holes and joins nearby regions: dilate then erode.
func Close(m *Mask, radius float64, iterations int) *Mask {
	for i := 0; i < iterations; i++ {
		m = Erode(Dilate(m, radius, 1), radius, 1)
	}
	return m
}

// Open removes speckle noise: erode then dilate.
func Open(m *Mask, radius float64, iterations int) *Mask {
	for i := 0; i < iterations; i++ {
		m = Dilate(Erode(m, radius, 1), radius, 1)
	}
	return m
}

func applyMorph(m *Mask, iterations int, f func(image.Image) image.Image) *Mask {
	if iterations <= 0 {
		return m
	}
	var img image.Image = m.Gray()
	for i := 0; i < iterations; i++ {
		img = f(img)
	}
	return maskFromImage(img)
}
