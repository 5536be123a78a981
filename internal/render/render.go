// Package render produces a self-contained Leaflet HTML map for a detection
// run: candidate polygons shaded by suitability score, plus markers for
// candidates and OpenStreetMap fitness stations.
package render

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

//go:embed map.html.tmpl
var mapTemplateSrc string

var mapTemplate = template.Must(template.New("map").Parse(mapTemplateSrc))

const defaultZoom = 13

// Map describes one rendered map page.
type Map struct {
	Title      string
	CenterLat  float64
	CenterLon  float64
	Zoom       int
	Candidates []detect.Candidate
	Stations   []overpass.Station
}

type candidateFeature struct {
	ID           string       `json:"id"`
	Ring         [][2]float64 `json:"ring"`
	Lat          float64      `json:"lat"`
	Lon          float64      `json:"lon"`
	Color        string       `json:"color"`
	Score        float64      `json:"score"`
	AreaM2       float64      `json:"area_m2"`
	MeanNDVI     float64      `json:"ndvi"`
	Class        string       `json:"class"`
	Validated    bool         `json:"validated"`
	OSMName      string       `json:"osm_name,omitempty"`
	OSMDistanceM float64      `json:"osm_distance_m"`
}

type stationMarker struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

type templateData struct {
	Title     string
	CenterLat float64
	CenterLon float64
	Zoom      int
	Payload   template.JS
}

// Render writes the map as a standalone HTML page.
func Render(w io.Writer, m Map) error {
	payload := struct {
		Candidates []candidateFeature `json:"candidates"`
		Stations   []stationMarker    `json:"stations"`
	}{
		Candidates: make([]candidateFeature, 0, len(m.Candidates)),
		Stations:   make([]stationMarker, 0, len(m.Stations)),
	}

	for _, c := range m.Candidates {
		payload.Candidates = append(payload.Candidates, candidateFeature{
			ID:           c.ID,
			Ring:         candidateRing(c),
			Lat:          c.Lat,
			Lon:          c.Lon,
			Color:        ScoreColor(c.Score),
			Score:        c.Score,
			AreaM2:       c.AreaM2,
			MeanNDVI:     c.MeanNDVI,
			Class:        c.Class,
			Validated:    c.Validated,
			OSMName:      c.OSMName,
			OSMDistanceM: c.OSMDistanceM,
		})
	}
	for _, s := range m.Stations {
		payload.Stations = append(payload.Stations, stationMarker{
			Name:       s.Name,
			Lat:        s.Lat,
			Lon:        s.Lon,
			Source:     s.Source,
			Confidence: s.Confidence,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "render: marshal map payload")
	}

	centerLat, centerLon := m.CenterLat, m.CenterLon
	if centerLat == 0 && centerLon == 0 {
		centerLat, centerLon = centroid(m.Candidates, m.Stations)
	}
	zoom := m.Zoom
	if zoom <= 0 {
		zoom = defaultZoom
	}
	title := m.Title
	if title == "" {
		title = "Detection Candidates"
	}

	err = mapTemplate.Execute(w, templateData{
		Title:     title,
		CenterLat: centerLat,
		CenterLon: centerLon,
		Zoom:      zoom,
		Payload:   template.JS(data),
	})
	return eris.Wrap(err, "render: execute map template")
}

// WriteMap renders the map to a file.
func WriteMap(path string, m Map) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	if err := Render(f, m); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "render: close %s", path)
}

// candidateRing returns the outer ring as [lat, lon] pairs, the vertex order
// Leaflet polygons expect.
func candidateRing(c detect.Candidate) [][2]float64 {
	if c.Polygon == nil || c.Polygon.NumLinearRings() == 0 {
		return nil
	}
	coords := c.Polygon.LinearRing(0).Coords()
	ring := make([][2]float64, len(coords))
	for i, coord := range coords {
		ring[i] = [2]float64{coord[1], coord[0]}
	}
	return ring
}

func centroid(candidates []detect.Candidate, stations []overpass.Station) (float64, float64) {
	var lat, lon float64
	n := 0
	for _, c := range candidates {
		lat += c.Lat
		lon += c.Lon
		n++
	}
	for _, s := range stations {
		lat += s.Lat
		lon += s.Lon
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return lat / float64(n), lon / float64(n)
}
