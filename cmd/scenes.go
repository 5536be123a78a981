package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/urbansports/fieldscout/pkg/copernicus"
)

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "List available Sentinel-2 scenes for an area",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		city, _ := cmd.Flags().GetString("city")
		bboxFlag, _ := cmd.Flags().GetString("bbox")
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")

		_, bbox, err := resolveArea(city, bboxFlag)
		if err != nil {
			return err
		}
		if days <= 0 {
			days = cfg.Copernicus.LookbackDays
		}

		cop, err := newCopernicusClient()
		if err != nil {
			return err
		}

		to := time.Now().UTC()
		items, err := cop.SearchCatalog(ctx, copernicus.CatalogRequest{
			BBox:          bbox,
			From:          to.AddDate(0, 0, -days),
			To:            to,
			MaxCloudCover: cfg.Copernicus.MaxCloudCover,
		})
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool {
			return items[i].CloudCover < items[j].CloudCover
		})

		if asJSON {
			return printJSON(os.Stdout, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No scenes found.")
			return nil
		}
		formatScenes(os.Stdout, items)
		return nil
	},
}

func init() {
	scenesCmd.Flags().String("city", "", "named city area (e.g. dusseldorf)")
	scenesCmd.Flags().String("bbox", "", "bounding box west,south,east,north")
	scenesCmd.Flags().Int("days", 0, "lookback window in days (default from config)")
	scenesCmd.Flags().Bool("json", false, "print raw JSON")
	rootCmd.AddCommand(scenesCmd)
}

func formatScenes(w io.Writer, items []copernicus.CatalogItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENE\tDATE\tCLOUD %")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\n", it.ID, it.Datetime.Format("2006-01-02 15:04"), it.CloudCover)
	}
	_ = tw.Flush()
}
