package raster

// Quantize rescales the grid to 8-bit levels using its own min/max range.
// A constant grid quantizes to all zeros.
func Quantize(g *Grid) []uint8 {
	lo, hi := g.MinMax()
	out := make([]uint8, len(g.Data))
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range g.Data {
		q := (v - lo) / span * 255
		if q < 0 {
			q = 0
		}
		if q > 255 {
			q = 255
		}
		out[i] = uint8(q)
	}
	return out
}

// OtsuThreshold computes Otsu's threshold over 8-bit levels: the level that
// maximizes between-class variance of the histogram.
func OtsuThreshold(levels []uint8) uint8 {
	var hist [256]int
	for _, v := range levels {
		hist[v]++
	}
	total := len(levels)
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	var sumBg float64
	var wBg int
	var best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wBg += hist[t]
		if wBg == 0 {
			continue
		}
		wFg := total - wBg
		if wFg == 0 {
			break
		}
		sumBg += float64(t) * float64(hist[t])
		meanBg := sumBg / float64(wBg)
		meanFg := (sumAll - sumBg) / float64(wFg)
		between := float64(wBg) * float64(wFg) * (meanBg - meanFg) * (meanBg - meanFg)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// OtsuMask binarizes a grid with Otsu's method: pixels strictly above the
// computed threshold become foreground.
func OtsuMask(g *Grid) *Mask {
	levels := Quantize(g)
	t := OtsuThreshold(levels)
	m := NewMask(g.W, g.H)
	for i, v := range levels {
		if v > t {
			m.Pix[i] = 255
		}
	}
	return m
}
