package copernicus

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/tiff"

	"github.com/urbansports/fieldscout/internal/raster"
)

const crs84 = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

// bandsEvalscript renders the four detection bands as single-channel UINT16
// TIFFs in DN units. Cloud, shadow and cirrus pixels (SCL 3, 8, 9, 10) are
// zeroed so they read as no-data downstream.
const bandsEvalscript = `//VERSION=3
function setup() {
  return {
    input: [{bands: ["B02", "B03", "B04", "B08", "SCL"], units: "DN"}],
    output: [
      {id: "red", bands: 1, sampleType: "UINT16"},
      {id: "green", bands: 1, sampleType: "UINT16"},
      {id: "blue", bands: 1, sampleType: "UINT16"},
      {id: "nir", bands: 1, sampleType: "UINT16"}
    ]
  };
}
function evaluatePixel(s) {
  if (s.SCL == 3 || s.SCL == 8 || s.SCL == 9 || s.SCL == 10) {
    return {red: [0], green: [0], blue: [0], nir: [0]};
  }
  return {red: [s.B04], green: [s.B03], blue: [s.B02], nir: [s.B08]};
}`

// demEvalscript shifts and scales heights into the UINT16 range.
const demEvalscript = `//VERSION=3
function setup() {
  return {input: ["DEM"], output: {id: "dem", bands: 1, sampleType: "UINT16"}};
}
function evaluatePixel(s) {
  return {dem: [(s.DEM + 1000.0) * 10.0]};
}`

type processRequest struct {
	Input      processInput  `json:"input"`
	Output     processOutput `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type processInput struct {
	Bounds processBounds `json:"bounds"`
	Data   []processData `json:"data"`
}

type processBounds struct {
	BBox       []float64         `json:"bbox"`
	Properties map[string]string `json:"properties"`
}

type processData struct {
	Type       string             `json:"type"`
	DataFilter *processDataFilter `json:"dataFilter,omitempty"`
}

type processDataFilter struct {
	TimeRange        *timeRange `json:"timeRange,omitempty"`
	MaxCloudCoverage *float64   `json:"maxCloudCoverage,omitempty"`
	MosaickingOrder  string     `json:"mosaickingOrder,omitempty"`
}

type timeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type processOutput struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Responses []processResponse `json:"responses"`
}

type processResponse struct {
	Identifier string        `json:"identifier"`
	Format     processFormat `json:"format"`
}

type processFormat struct {
	Type string `json:"type"`
}

// FetchScene renders the red, green, blue and NIR bands over the request
// bounding box as cloud-masked reflectance grids.
func (c *httpClient) FetchScene(ctx context.Context, req SceneRequest) (*Scene, error) {
	if err := req.BBox.Validate(); err != nil {
		return nil, err
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, eris.Errorf("copernicus: invalid output size %dx%d", req.Width, req.Height)
	}

	cloud := req.MaxCloudCover
	body := processRequest{
		Input: processInput{
			Bounds: processBounds{
				BBox:       req.BBox.Slice(),
				Properties: map[string]string{"crs": crs84},
			},
			Data: []processData{{
				Type: "sentinel-2-l2a",
				DataFilter: &processDataFilter{
					TimeRange:        &timeRange{From: req.From.UTC(), To: req.To.UTC()},
					MaxCloudCoverage: &cloud,
					MosaickingOrder:  "leastCC",
				},
			}},
		},
		Output: processOutput{
			Width:  req.Width,
			Height: req.Height,
			Responses: []processResponse{
				{Identifier: "red", Format: processFormat{Type: "image/tiff"}},
				{Identifier: "green", Format: processFormat{Type: "image/tiff"}},
				{Identifier: "blue", Format: processFormat{Type: "image/tiff"}},
				{Identifier: "nir", Format: processFormat{Type: "image/tiff"}},
			},
		},
		Evalscript: bandsEvalscript,
	}

	grids, err := c.process(ctx, body)
	if err != nil {
		return nil, err
	}

	scene := &Scene{}
	for id, dst := range map[string]**raster.Grid{
		"red": &scene.Red, "green": &scene.Green, "blue": &scene.Blue, "nir": &scene.NIR,
	} {
		g, ok := grids[id]
		if !ok {
			return nil, eris.Errorf("copernicus: process response missing band %q", id)
		}
		g.Scale(1 / reflectanceScale)
		*dst = g
	}

	zap.L().Debug("scene fetched",
		zap.String("component", "copernicus"),
		zap.Stringer("bbox", req.BBox),
		zap.Int("width", req.Width),
		zap.Int("height", req.Height),
	)
	return scene, nil
}

// FetchDEM renders Copernicus 30m elevation in meters over the bounding box.
func (c *httpClient) FetchDEM(ctx context.Context, req DEMRequest) (*raster.Grid, error) {
	if err := req.BBox.Validate(); err != nil {
		return nil, err
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, eris.Errorf("copernicus: invalid output size %dx%d", req.Width, req.Height)
	}

	body := processRequest{
		Input: processInput{
			Bounds: processBounds{
				BBox:       req.BBox.Slice(),
				Properties: map[string]string{"crs": crs84},
			},
			Data: []processData{{Type: "dem"}},
		},
		Output: processOutput{
			Width:  req.Width,
			Height: req.Height,
			Responses: []processResponse{
				{Identifier: "dem", Format: processFormat{Type: "image/tiff"}},
			},
		},
		Evalscript: demEvalscript,
	}

	grids, err := c.process(ctx, body)
	if err != nil {
		return nil, err
	}
	dem, ok := grids["dem"]
	if !ok {
		return nil, eris.New("copernicus: process response missing dem output")
	}
	dem.Scale(1 / demScale)
	dem.Shift(-demOffsetM)
	return dem, nil
}

// process posts one Process API request and decodes the tar of TIFF outputs.
func (c *httpClient) process(ctx context.Context, body processRequest) (map[string]*raster.Grid, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: marshal process request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/process", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: create process request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/tar")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "copernicus: send process request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, eris.Errorf("copernicus: process returned %d: %s", resp.StatusCode, string(msg))
	}

	return decodeTar(resp.Body)
}

// decodeTar reads an application/tar response of single-band grayscale TIFFs
// keyed by output identifier (the file name without extension).
func decodeTar(r io.Reader) (map[string]*raster.Grid, error) {
	out := map[string]*raster.Grid{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "copernicus: read tar")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		img, err := tiff.Decode(tr)
		if err != nil {
			return nil, eris.Wrapf(err, "copernicus: decode %s", hdr.Name)
		}
		grid, err := gridFromImage(img)
		if err != nil {
			return nil, eris.Wrapf(err, "copernicus: convert %s", hdr.Name)
		}

		name := hdr.Name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[:i]
		}
		out[name] = grid
	}
	if len(out) == 0 {
		return nil, eris.New("copernicus: tar response contained no images")
	}
	return out, nil
}

// gridFromImage converts a grayscale image into a grid of raw sample values.
func gridFromImage(img image.Image) (*raster.Grid, error) {
	b := img.Bounds()
	g := raster.NewGrid(b.Dx(), b.Dy())

	switch im := img.(type) {
	case *image.Gray16:
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				g.Set(x, y, float64(im.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < g.H; y++ {
			for x := 0; x < g.W; x++ {
				g.Set(x, y, float64(im.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		return nil, eris.Errorf("copernicus: unsupported image type %T", img)
	}
	return g, nil
}
