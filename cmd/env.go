package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/urbansports/fieldscout/internal/fetcher"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/store"
	"github.com/urbansports/fieldscout/pkg/copernicus"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q (want sqlite or postgres)", cfg.Store.Driver)
	}
}

// sharedHTTPClient builds the rate-limited client used by both API clients.
func sharedHTTPClient() *http.Client {
	return fetcher.NewHTTPClient(fetcher.Options{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
	})
}

// newCopernicusClient creates the CDSE client from configured credentials.
func newCopernicusClient() (copernicus.Client, error) {
	if cfg.Copernicus.Username == "" || cfg.Copernicus.Password == "" {
		return nil, eris.New("copernicus credentials missing: set FIELDSCOUT_COPERNICUS_USERNAME and FIELDSCOUT_COPERNICUS_PASSWORD (use the demo command to run without credentials)")
	}
	return copernicus.NewClient(cfg.Copernicus.Username, cfg.Copernicus.Password,
		copernicus.WithBaseURL(cfg.Copernicus.BaseURL),
		copernicus.WithTokenURL(cfg.Copernicus.TokenURL),
		copernicus.WithHTTPClient(sharedHTTPClient()),
	), nil
}

// newOverpassClient creates the Overpass client.
func newOverpassClient() overpass.Client {
	opts := []overpass.Option{
		overpass.WithBaseURL(cfg.Overpass.BaseURL),
		overpass.WithHTTPClient(sharedHTTPClient()),
	}
	if cfg.Overpass.UseFallback {
		opts = append(opts, overpass.WithStaticFallback())
	}
	return overpass.NewClient(opts...)
}

// resolveArea turns the --city / --bbox flags into a named area and bounding
// box. Exactly one of the two must be given.
func resolveArea(city, bboxFlag string) (string, georef.BBox, error) {
	if city != "" && bboxFlag != "" {
		return "", georef.BBox{}, eris.New("use either --city or --bbox, not both")
	}
	if city != "" {
		bbox, err := cfg.CityBBox(city)
		if err != nil {
			return "", georef.BBox{}, err
		}
		return overpass.FoldName(city), bbox, nil
	}
	if bboxFlag != "" {
		bbox, err := parseBBox(bboxFlag)
		return "", bbox, err
	}
	return "", georef.BBox{}, eris.New("an area is required: pass --city <name> or --bbox west,south,east,north")
}

// parseBBox parses "west,south,east,north".
func parseBBox(s string) (georef.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return georef.BBox{}, eris.Errorf("bbox %q: want west,south,east,north", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return georef.BBox{}, eris.Wrapf(err, "bbox %q", s)
		}
		vals[i] = v
	}
	bbox := georef.BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if err := bbox.Validate(); err != nil {
		return georef.BBox{}, err
	}
	return bbox, nil
}
