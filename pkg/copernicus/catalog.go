package copernicus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

type catalogSearchRequest struct {
	Collections []string       `json:"collections"`
	BBox        []float64      `json:"bbox"`
	Datetime    string         `json:"datetime"`
	Limit       int            `json:"limit"`
	Filter      *catalogFilter `json:"filter,omitempty"`
	FilterLang  string         `json:"filter-lang,omitempty"`
}

type catalogFilter struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type catalogSearchResponse struct {
	Features []catalogFeature `json:"features"`
}

type catalogFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Datetime   time.Time `json:"datetime"`
		CloudCover float64   `json:"eo:cloud_cover"`
	} `json:"properties"`
}

// SearchCatalog lists Sentinel-2 L2A scenes intersecting the bounding box in
// the time window, ordered as returned by the STAC endpoint.
func (c *httpClient) SearchCatalog(ctx context.Context, req CatalogRequest) ([]CatalogItem, error) {
	if err := req.BBox.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	body := catalogSearchRequest{
		Collections: []string{"sentinel-2-l2a"},
		BBox:        req.BBox.Slice(),
		Datetime:    req.From.UTC().Format(time.RFC3339) + "/" + req.To.UTC().Format(time.RFC3339),
		Limit:       limit,
	}
	if req.MaxCloudCover > 0 {
		body.Filter = &catalogFilter{
			Op:   "<=",
			Args: []any{map[string]string{"property": "eo:cloud_cover"}, req.MaxCloudCover},
		}
		body.FilterLang = "cql2-json"
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: marshal catalog request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/catalog/1.0.0/search", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: create catalog request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: send catalog request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: read catalog response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("copernicus: catalog returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result catalogSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "copernicus: unmarshal catalog response")
	}

	items := make([]CatalogItem, 0, len(result.Features))
	for _, f := range result.Features {
		items = append(items, CatalogItem{
			ID:         f.ID,
			Datetime:   f.Properties.Datetime,
			CloudCover: f.Properties.CloudCover,
		})
	}
	return items, nil
}
