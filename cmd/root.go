package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbansports/fieldscout/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fieldscout",
	Short: "Satellite-based detection of outdoor sports infrastructure",
	Long:  "Fetches Sentinel-2 scenes, detects candidate sites for fitness equipment, rooftops and sports fields via NDVI analysis, cross-validates against OpenStreetMap, and exports results as GeoJSON, CSV, shapefiles and interactive maps.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
