// Package copernicus is a client for the Copernicus Data Space Ecosystem
// Sentinel Hub APIs: OAuth token exchange, the Process API for raster
// rendering and the STAC catalog for scene discovery.
package copernicus

import (
	"context"
	"net/http"
	"time"

	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/raster"
)

const (
	defaultBaseURL  = "https://sh.dataspace.copernicus.eu"
	defaultTokenURL = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	// publicClientID is the CDSE public OAuth client for password grants.
	publicClientID = "cdse-public"

	// reflectanceScale converts Sentinel-2 L2A digital numbers to reflectance.
	reflectanceScale = 10000.0

	// DEM heights travel as UINT16: dn = (height_m + demOffsetM) * demScale.
	demScale   = 10.0
	demOffsetM = 1000.0
)

// Client fetches Sentinel-2 scenes and Copernicus DEM tiles.
type Client interface {
	FetchScene(ctx context.Context, req SceneRequest) (*Scene, error)
	FetchDEM(ctx context.Context, req DEMRequest) (*raster.Grid, error)
	SearchCatalog(ctx context.Context, req CatalogRequest) ([]CatalogItem, error)
}

// SceneRequest asks for the four detection bands over one bounding box.
type SceneRequest struct {
	BBox          georef.BBox
	Width, Height int
	From, To      time.Time
	MaxCloudCover float64
}

// Scene holds the decoded reflectance bands. Cloud-classified pixels are
// zeroed server-side by the evalscript.
type Scene struct {
	Red, Green, Blue, NIR *raster.Grid
}

// DEMRequest asks for Copernicus 30m elevation over one bounding box.
type DEMRequest struct {
	BBox          georef.BBox
	Width, Height int
}

// CatalogRequest searches the STAC catalog for Sentinel-2 L2A scenes.
type CatalogRequest struct {
	BBox          georef.BBox
	From, To      time.Time
	MaxCloudCover float64
	Limit         int
}

// CatalogItem is one scene returned by the catalog search.
type CatalogItem struct {
	ID         string    `json:"id"`
	Datetime   time.Time `json:"datetime"`
	CloudCover float64   `json:"cloud_cover"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the Sentinel Hub base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTokenURL overrides the identity token endpoint.
func WithTokenURL(url string) Option {
	return func(c *httpClient) {
		c.tokenURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	username string
	password string
	baseURL  string
	tokenURL string
	http     *http.Client

	token tokenCache
}

// NewClient creates a CDSE client authenticating with the given account.
func NewClient(username, password string, opts ...Option) Client {
	c := &httpClient{
		username: username,
		password: password,
		baseURL:  defaultBaseURL,
		tokenURL: defaultTokenURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}
