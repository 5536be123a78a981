package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/gridagg"
)

var gridCmd = &cobra.Command{
	Use:   "grid <run-id>",
	Short: "Aggregate a run's candidates onto a regular fishnet grid",
	Long:  "Projects candidate polygons to planar meters, overlays a snapped fishnet grid, distributes suitability scores area-weighted across cells and writes the grid as GeoJSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID := args[0]

		cellSize, _ := cmd.Flags().GetFloat64("cell-size")
		outPath, _ := cmd.Flags().GetString("out")
		if cellSize <= 0 {
			cellSize = cfg.Grid.CellSizeM
		}
		if outPath == "" {
			outPath = runID + "_grid.geojson"
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		candidates, err := st.ListCandidates(ctx, runID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return eris.Errorf("run %s has no candidates", runID)
		}

		data, cells, err := aggregateGrid(run.BBox, candidates, cellSize, cfg.Grid.AreaWeighted)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", outPath)
		}

		fmt.Fprintf(os.Stdout, "aggregated %d candidates into %d cells of %.0fm, written to %s\n",
			len(candidates), cells, cellSize, outPath)
		return nil
	},
}

func init() {
	gridCmd.Flags().Float64("cell-size", 0, "cell edge length in meters (default from config)")
	gridCmd.Flags().String("out", "", "output GeoJSON path (default <run-id>_grid.geojson)")
	rootCmd.AddCommand(gridCmd)
}

// aggregateGrid distributes candidate scores over a fishnet and returns the
// grid as GeoJSON along with the cell count.
func aggregateGrid(bbox georef.BBox, candidates []detect.Candidate, cellSize float64, areaWeighted bool) ([]byte, int, error) {
	originLon, originLat := bbox.Center()
	proj := georef.NewProjection(originLon, originLat)

	minX, minY := proj.Forward(bbox.West, bbox.South)
	maxX, maxY := proj.Forward(bbox.East, bbox.North)

	cells, err := gridagg.Fishnet(gridagg.Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}, cellSize)
	if err != nil {
		return nil, 0, err
	}

	var polygons []gridagg.ValuedPolygon
	var centers [][2]float64
	for _, c := range candidates {
		x, y := proj.Forward(c.Lon, c.Lat)
		centers = append(centers, [2]float64{x, y})
		if c.Polygon == nil {
			continue
		}
		polygons = append(polygons, gridagg.ValuedPolygon{
			Geom:  projectPolygon(proj, c.Polygon),
			Value: c.Score,
		})
	}

	gridagg.RegridSum(cells, polygons, areaWeighted)
	gridagg.CountPoints(cells, centers)

	data, err := cellsToGeoJSON(proj, cells)
	return data, len(cells), err
}

// projectPolygon maps a lon/lat polygon into the planar projection.
func projectPolygon(proj georef.Projection, poly *geom.Polygon) *geom.Polygon {
	coords := make([][]geom.Coord, poly.NumLinearRings())
	for r := 0; r < poly.NumLinearRings(); r++ {
		ring := poly.LinearRing(r).Coords()
		projected := make([]geom.Coord, len(ring))
		for i, c := range ring {
			x, y := proj.Forward(c[0], c[1])
			projected[i] = geom.Coord{x, y}
		}
		coords[r] = projected
	}
	return geom.NewPolygon(geom.XY).MustSetCoords(coords)
}

// cellsToGeoJSON renders the fishnet back to lon/lat as a FeatureCollection.
// Cells with neither value nor points are omitted to keep outputs small.
func cellsToGeoJSON(proj georef.Projection, cells []gridagg.Cell) ([]byte, error) {
	fc := geojson.FeatureCollection{}
	for _, cell := range cells {
		if cell.Value == 0 && cell.Count == 0 {
			continue
		}

		corners := [][2]float64{
			{cell.MinX, cell.MinY},
			{cell.MaxX, cell.MinY},
			{cell.MaxX, cell.MaxY},
			{cell.MinX, cell.MaxY},
			{cell.MinX, cell.MinY},
		}
		ring := make([]geom.Coord, len(corners))
		for i, corner := range corners {
			lon, lat := proj.Inverse(corner[0], corner[1])
			ring[i] = geom.Coord{lon, lat}
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       cell.ID,
			Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring}),
			Properties: map[string]any{
				"value": cell.Value,
				"count": cell.Count,
			},
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "marshal grid feature collection")
	}
	return data, nil
}
