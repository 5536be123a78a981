package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/urbansports/fieldscout/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <run-id>",
	Short: "Render a stored run as an interactive Leaflet map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID := args[0]

		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			outPath = runID + ".html"
		}
		title, _ := cmd.Flags().GetString("title")

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

		if title == "" {
			title = fmt.Sprintf("Run %s (%s)", runID, run.Profile)
		}
		centerLat, centerLon := 0.0, 0.0
		if len(candidates) == 0 {
			lon, lat := run.BBox.Center()
			centerLon, centerLat = lon, lat
		}

		if err := render.WriteMap(outPath, render.Map{
			Title:      title,
			CenterLat:  centerLat,
			CenterLon:  centerLon,
			Candidates: candidates,
			Stations:   stations,
		}); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "map written to %s\n", outPath)
		return nil
	},
}

func init() {
	renderCmd.Flags().String("out", "", "output HTML path (default <run-id>.html)")
	renderCmd.Flags().String("title", "", "map title")
	rootCmd.AddCommand(renderCmd)
}
