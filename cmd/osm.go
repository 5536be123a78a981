package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/urbansports/fieldscout/pkg/overpass"
)

var osmCmd = &cobra.Command{
	Use:   "osm",
	Short: "Query OpenStreetMap ground truth via Overpass",
}

var osmStationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List known fitness stations in an area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		area, cityKey, err := osmArea(cmd)
		if err != nil {
			return err
		}
		save, _ := cmd.Flags().GetBool("save")
		asJSON, _ := cmd.Flags().GetBool("json")

		stations, err := newOverpassClient().FitnessStations(ctx, area)
		if err != nil {
			return err
		}

		if save {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if err := st.SaveStations(ctx, cityKey, stations); err != nil {
				return err
			}
		}

		if asJSON {
			return printJSON(os.Stdout, stations)
		}
		formatStations(os.Stdout, stations)
		return nil
	},
}

var osmPitchesCmd = &cobra.Command{
	Use:   "pitches",
	Short: "List soccer and football pitches in an area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		area, _, err := osmArea(cmd)
		if err != nil {
			return err
		}
		sports, _ := cmd.Flags().GetStringSlice("sport")
		asJSON, _ := cmd.Flags().GetBool("json")

		features, err := newOverpassClient().Pitches(cmd.Context(), area, sports)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, features)
		}
		formatFeatures(os.Stdout, features)
		return nil
	},
}

var osmParksCmd = &cobra.Command{
	Use:   "parks",
	Short: "List parks in an area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		area, _, err := osmArea(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		features, err := newOverpassClient().Parks(cmd.Context(), area)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, features)
		}
		formatFeatures(os.Stdout, features)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{osmStationsCmd, osmPitchesCmd, osmParksCmd} {
		c.Flags().String("city", "", "named OSM administrative area (e.g. Düsseldorf)")
		c.Flags().String("bbox", "", "bounding box west,south,east,north")
		c.Flags().Bool("json", false, "print raw JSON instead of a table")
		osmCmd.AddCommand(c)
	}
	osmStationsCmd.Flags().Bool("save", false, "persist stations to the store")
	osmPitchesCmd.Flags().StringSlice("sport", nil, "sport tags to match (default soccer,football)")
	rootCmd.AddCommand(osmCmd)
}

// osmArea builds the Overpass area from the --city / --bbox flags. Unlike
// detection, a named area queries by OSM boundary rather than the city's
// bounding box.
func osmArea(cmd *cobra.Command) (overpass.Area, string, error) {
	city, _ := cmd.Flags().GetString("city")
	bboxFlag, _ := cmd.Flags().GetString("bbox")

	if city != "" && bboxFlag != "" {
		return overpass.Area{}, "", eris.New("use either --city or --bbox, not both")
	}
	if city != "" {
		return overpass.Area{Name: city, AdminLevel: cfg.Overpass.AdminLevel}, overpass.FoldName(city), nil
	}
	if bboxFlag != "" {
		bbox, err := parseBBox(bboxFlag)
		if err != nil {
			return overpass.Area{}, "", err
		}
		return overpass.Area{BBox: &bbox}, "", nil
	}
	return overpass.Area{}, "", eris.New("an area is required: pass --city <name> or --bbox west,south,east,north")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatStations writes a tabular station list.
func formatStations(out io.Writer, stations []overpass.Station) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tLAT\tLON\tCONFIDENCE\tSOURCE")
	_, _ = fmt.Fprintln(w, "----\t---\t---\t----------\t------")
	for _, s := range stations {
		_, _ = fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%.2f\t%s\n",
			truncateName(s.Name), s.Lat, s.Lon, s.Confidence, s.Source)
	}
	_ = w.Flush()
}

// formatFeatures writes a tabular feature list.
func formatFeatures(out io.Writer, features []overpass.Feature) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tLEISURE\tSPORT\tSURFACE\tLAT\tLON")
	_, _ = fmt.Fprintln(w, "----\t-------\t-----\t-------\t---\t---")
	for _, f := range features {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.5f\t%.5f\n",
			truncateName(f.Name), f.Leisure, f.Sport, f.Surface, f.Lat, f.Lon)
	}
	_ = w.Flush()
}

// truncateName shortens long names for compact display.
func truncateName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	if len(name) > 30 {
		return name[:27] + "..."
	}
	return name
}
