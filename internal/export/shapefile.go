package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/urbansports/fieldscout/internal/detect"
)

var shapefileFields = []shp.Field{
	shp.StringField("ID", 32),
	shp.FloatField("SCORE", 10, 4),
	shp.FloatField("AREA_M2", 12, 1),
	shp.FloatField("NDVI", 10, 4),
	shp.StringField("CLASS", 32),
	shp.StringField("VALIDATED", 1),
}

// Shapefile writes candidate polygons with their core attributes. Candidates
// without geometry are skipped.
func Shapefile(path string, candidates []detect.Candidate) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields(shapefileFields); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	row := 0
	for _, c := range candidates {
		if c.Polygon == nil || c.Polygon.NumLinearRings() == 0 {
			continue
		}

		coords := c.Polygon.LinearRing(0).Coords()
		points := make([]shp.Point, len(coords))
		for i, coord := range coords {
			points[i] = shp.Point{X: coord[0], Y: coord[1]}
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{points}))
		w.Write(&poly)

		validated := "N"
		if c.Validated {
			validated = "Y"
		}
		for field, value := range map[int]any{
			0: c.ID,
			1: c.Score,
			2: c.AreaM2,
			3: c.MeanNDVI,
			4: c.Class,
			5: validated,
		} {
			if err := w.WriteAttribute(row, field, value); err != nil {
				return eris.Wrapf(err, "export: write attribute for %s", c.ID)
			}
		}
		row++
	}
	return nil
}
