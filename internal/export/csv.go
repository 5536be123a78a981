package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/urbansports/fieldscout/internal/detect"
)

var csvHeader = []string{
	"id", "lon", "lat", "area_m2", "ndvi_mean", "slope_deg", "mean_height_m",
	"suitability_score", "class", "osm_validated", "osm_distance_m", "osm_name",
}

// CSV writes one row per candidate. Missing DEM statistics render as empty
// cells.
func CSV(w io.Writer, candidates []detect.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	for _, c := range candidates {
		row := []string{
			c.ID,
			formatFloat(c.Lon, 6),
			formatFloat(c.Lat, 6),
			formatFloat(c.AreaM2, 1),
			formatFloat(c.MeanNDVI, 4),
			optionalFloat(c.MeanSlopeDeg, 2),
			optionalFloat(c.MeanHeightM, 2),
			formatFloat(c.Score, 4),
			c.Class,
			strconv.FormatBool(c.Validated),
			formatFloat(c.OSMDistanceM, 1),
			c.OSMName,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", c.ID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func optionalFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v, prec)
}
