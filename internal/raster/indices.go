package raster

// NDVI computes the Normalized Difference Vegetation Index (NIR−Red)/(NIR+Red).
// Pixels where the denominator is zero yield 0 rather than NaN.
func NDVI(nir, red *Grid) (*Grid, error) {
	if err := sameDims(nir, red); err != nil {
		return nil, err
	}
	out := NewGrid(nir.W, nir.H)
	for i := range out.Data {
		d := nir.Data[i] + red.Data[i]
		if d != 0 {
			out.Data[i] = (nir.Data[i] - red.Data[i]) / d
		}
	}
	return out, nil
}

// EVI computes the Enhanced Vegetation Index
// 2.5·(NIR−Red)/(NIR + 6·Red − 7.5·Blue + 1).
func EVI(nir, red, blue *Grid) (*Grid, error) {
	if err := sameDims(nir, red, blue); err != nil {
		return nil, err
	}
	out := NewGrid(nir.W, nir.H)
	for i := range out.Data {
		d := nir.Data[i] + 6*red.Data[i] - 7.5*blue.Data[i] + 1
		if d != 0 {
			out.Data[i] = 2.5 * (nir.Data[i] - red.Data[i]) / d
		}
	}
	return out, nil
}

// Intensity computes the per-pixel mean of the three visible bands.
func Intensity(red, green, blue *Grid) (*Grid, error) {
	if err := sameDims(red, green, blue); err != nil {
		return nil, err
	}
	out := NewGrid(red.W, red.H)
	for i := range out.Data {
		out.Data[i] = (red.Data[i] + green.Data[i] + blue.Data[i]) / 3
	}
	return out, nil
}

// BuildingScore combines normalized brightness with inverse vegetation:
// bright, non-vegetated pixels (rooftops, pavement) score high. NDVI is
// assumed to lie in [−1, 1]; the result lies in [0, 1].
func BuildingScore(intensity, ndvi *Grid) (*Grid, error) {
	if err := sameDims(intensity, ndvi); err != nil {
		return nil, err
	}
	norm := intensity.Normalized()
	out := NewGrid(ndvi.W, ndvi.H)
	for i := range out.Data {
		out.Data[i] = norm.Data[i] * (1 - (ndvi.Data[i]+1)/2)
	}
	return out, nil
}
