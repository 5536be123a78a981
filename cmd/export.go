package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/export"
	"github.com/urbansports/fieldscout/internal/render"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored run as GeoJSON, CSV and shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID := args[0]

		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = cfg.Export.Dir
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
		stations, err := st.StationsInBBox(ctx, run.BBox)
		if err != nil {
			return err
		}

		if err := writeExports(outDir, runID, candidates, stations); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "exported %d candidates to %s\n", len(candidates), outDir)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "export directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}

// writeExports writes the full output set for one run: GeoJSON, CSV,
// shapefile and an interactive map.
func writeExports(dir, runID string, candidates []detect.Candidate, stations []overpass.Station) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create export dir %s", dir)
	}
	base := filepath.Join(dir, runID)

	geo, err := export.GeoJSON(candidates, cfg.Export.Precision)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".geojson", geo, 0o644); err != nil {
		return eris.Wrap(err, "write geojson")
	}

	csvFile, err := os.Create(base + ".csv")
	if err != nil {
		return eris.Wrap(err, "create csv")
	}
	if err := export.CSV(csvFile, candidates); err != nil {
		_ = csvFile.Close()
		return err
	}
	if err := csvFile.Close(); err != nil {
		return eris.Wrap(err, "close csv")
	}

	if err := export.Shapefile(base+".shp", candidates); err != nil {
		return err
	}

	return render.WriteMap(base+".html", render.Map{
		Title:      "Run " + runID,
		Candidates: candidates,
		Stations:   stations,
	})
}
