// Package overpass queries the OpenStreetMap Overpass API for fitness
// stations, sports pitches and parks used as detection ground truth.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/urbansports/fieldscout/internal/georef"
)

const (
	defaultBaseURL = "https://overpass-api.de/api/interpreter"
	userAgent      = "fieldscout/1.0"
)

// Area selects the query region: an OSM administrative area by name, or a
// raw bounding box when Name is empty.
type Area struct {
	Name       string
	AdminLevel int
	BBox       *georef.BBox
}

// Station is one OSM fitness station with a tag-derived confidence.
type Station struct {
	OSMID      int64             `json:"osm_id"`
	OSMType    string            `json:"osm_type"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Name       string            `json:"name"`
	Tags       map[string]string `json:"tags,omitempty"`
	Source     string            `json:"source"`
	Confidence float64           `json:"confidence"`
}

// Feature is a generic OSM leisure feature (pitch, park, sports centre).
type Feature struct {
	OSMID    int64             `json:"osm_id"`
	OSMType  string            `json:"osm_type"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Name     string            `json:"name"`
	Leisure  string            `json:"leisure"`
	Sport    string            `json:"sport,omitempty"`
	Surface  string            `json:"surface,omitempty"`
	Access   string            `json:"access,omitempty"`
	Operator string            `json:"operator,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Client queries the Overpass API.
type Client interface {
	FitnessStations(ctx context.Context, area Area) ([]Station, error)
	Pitches(ctx context.Context, area Area, sports []string) ([]Feature, error)
	Parks(ctx context.Context, area Area) ([]Feature, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the Overpass interpreter endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithStaticFallback makes FitnessStations fall back to the builtin station
// list instead of failing when the API is unreachable.
func WithStaticFallback() Option {
	return func(c *httpClient) {
		c.useFallback = true
	}
}

type httpClient struct {
	baseURL     string
	http        *http.Client
	useFallback bool
	log         *zap.Logger
}

// NewClient creates an Overpass API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: zap.L().With(zap.String("component", "overpass")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type element struct {
	Type   string  `json:"type"`
	ID     int64   `json:"id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []element `json:"elements"`
}

// FitnessStations returns fitness stations in the area with tag-derived
// confidence. With WithStaticFallback enabled an unreachable API yields the
// builtin fallback list instead of an error.
func (c *httpClient) FitnessStations(ctx context.Context, area Area) ([]Station, error) {
	query, err := fitnessQuery(area)
	if err != nil {
		return nil, err
	}

	elements, err := c.run(ctx, query)
	if err != nil {
		if c.useFallback {
			c.log.Warn("overpass unreachable, using fallback stations", zap.Error(err))
			return FallbackStations(), nil
		}
		return nil, err
	}

	stations := make([]Station, 0, len(elements))
	for _, el := range elements {
		lat, lon, ok := el.position()
		if !ok {
			continue
		}
		name := el.Tags["name"]
		if name == "" {
			name = fmt.Sprintf("Fitness Station %d", el.ID)
		}
		stations = append(stations, Station{
			OSMID:      el.ID,
			OSMType:    el.Type,
			Lat:        lat,
			Lon:        lon,
			Name:       name,
			Tags:       el.Tags,
			Source:     "openstreetmap",
			Confidence: Confidence(el.Tags),
		})
	}
	c.log.Info("fitness stations fetched", zap.Int("count", len(stations)), zap.String("area", area.Name))
	return stations, nil
}

// Pitches returns pitches, stadiums and sports centres for the given sports.
func (c *httpClient) Pitches(ctx context.Context, area Area, sports []string) ([]Feature, error) {
	query, err := pitchesQuery(area, sports)
	if err != nil {
		return nil, err
	}
	elements, err := c.run(ctx, query)
	if err != nil {
		return nil, err
	}
	return toFeatures(elements), nil
}

// Parks returns leisure=park ways and relations for context analysis.
func (c *httpClient) Parks(ctx context.Context, area Area) ([]Feature, error) {
	query, err := parksQuery(area)
	if err != nil {
		return nil, err
	}
	elements, err := c.run(ctx, query)
	if err != nil {
		return nil, err
	}
	return toFeatures(elements), nil
}

// run posts one Overpass QL query and decodes the element list.
func (c *httpClient) run(ctx context.Context, query string) ([]element, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("overpass: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var result overpassResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}
	return result.Elements, nil
}

// position resolves node coordinates or way/relation centers.
func (el element) position() (lat, lon float64, ok bool) {
	if el.Type == "node" {
		return el.Lat, el.Lon, true
	}
	if el.Center != nil {
		return el.Center.Lat, el.Center.Lon, true
	}
	return 0, 0, false
}

func toFeatures(elements []element) []Feature {
	out := make([]Feature, 0, len(elements))
	for _, el := range elements {
		lat, lon, ok := el.position()
		if !ok {
			continue
		}
		out = append(out, Feature{
			OSMID:    el.ID,
			OSMType:  el.Type,
			Lat:      lat,
			Lon:      lon,
			Name:     el.Tags["name"],
			Leisure:  el.Tags["leisure"],
			Sport:    el.Tags["sport"],
			Surface:  el.Tags["surface"],
			Access:   el.Tags["access"],
			Operator: el.Tags["operator"],
			Tags:     el.Tags,
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
