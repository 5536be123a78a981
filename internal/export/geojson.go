// Package export serializes detection candidates to GeoJSON, CSV and
// shapefile outputs.
package export

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
)

// DefaultPrecision is the coordinate decimal count for GeoJSON output.
// Five decimals is about a meter at mid latitudes.
const DefaultPrecision = 5

// GeoJSON renders candidates as a FeatureCollection. Coordinates are rounded
// to the given number of decimals; candidate statistics become feature
// properties. Candidates without geometry are skipped.
func GeoJSON(candidates []detect.Candidate, precision int) ([]byte, error) {
	if precision <= 0 {
		precision = DefaultPrecision
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(candidates))}
	for _, c := range candidates {
		if c.Polygon == nil {
			continue
		}
		props, err := properties(c)
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         c.ID,
			Geometry:   georef.RoundPolygon(c.Polygon, precision),
			Properties: props,
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal feature collection")
	}
	return data, nil
}

// properties flattens a candidate into GeoJSON feature properties via its
// JSON form, so property names track the candidate's JSON tags.
func properties(c detect.Candidate) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrapf(err, "export: marshal candidate %s", c.ID)
	}
	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, eris.Wrap(err, "export: unmarshal candidate properties")
	}
	delete(props, "id")
	return props, nil
}
