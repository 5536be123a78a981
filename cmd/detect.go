package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/urbansports/fieldscout/internal/detect"
	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/internal/raster"
	"github.com/urbansports/fieldscout/internal/resilience"
	"github.com/urbansports/fieldscout/internal/validate"
	"github.com/urbansports/fieldscout/pkg/copernicus"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run satellite detection over a city or bounding box",
}

var detectEquipmentCmd = &cobra.Command{
	Use:   "equipment",
	Short: "Detect candidate sites for outdoor fitness equipment",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDetect(cmd, "equipment")
	},
}

var detectRooftopsCmd = &cobra.Command{
	Use:   "rooftops",
	Short: "Detect flat rooftops suitable for sports installations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDetect(cmd, "rooftop")
	},
}

var detectFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Detect and classify sports fields",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDetect(cmd, "sportsfield")
	},
}

func init() {
	for _, c := range []*cobra.Command{detectEquipmentCmd, detectRooftopsCmd, detectFieldsCmd} {
		c.Flags().String("city", "", "named city area (e.g. dusseldorf)")
		c.Flags().String("bbox", "", "bounding box west,south,east,north")
		c.Flags().String("out", "", "export directory (default from config)")
		c.Flags().Int("limit", 0, "max candidates to keep (default from config)")
		c.Flags().Int("tile-size", 0, "tile edge in pixels (default from config)")
		c.Flags().Bool("no-dem", false, "skip the DEM fetch and terrain gates")
		c.Flags().Bool("no-validate", false, "skip OSM cross-validation")
		detectCmd.AddCommand(c)
	}
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, profileName string) error {
	ctx := cmd.Context()
	log := zap.L().With(zap.String("component", "cli"), zap.String("profile", profileName))

	city, _ := cmd.Flags().GetString("city")
	bboxFlag, _ := cmd.Flags().GetString("bbox")
	outDir, _ := cmd.Flags().GetString("out")
	limit, _ := cmd.Flags().GetInt("limit")
	noValidate, _ := cmd.Flags().GetBool("no-validate")

	cityKey, bbox, err := resolveArea(city, bboxFlag)
	if err != nil {
		return err
	}
	if outDir == "" {
		outDir = cfg.Export.Dir
	}
	if limit <= 0 {
		limit = cfg.Detect.MaxCandidates
	}

	profile, err := loadProfile(profileName)
	if err != nil {
		return err
	}

	cop, err := newCopernicusClient()
	if err != nil {
		return err
	}
	ovp := newOverpassClient()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.CreateRun(ctx, profileName, cityKey, bbox)
	if err != nil {
		return err
	}
	log.Info("run started", zap.String("run_id", run.ID), zap.Stringer("bbox", bbox))

	candidates, err := detectTiles(cmd, cop, profile, bbox)
	if err != nil {
		_ = st.FinishRun(ctx, run.ID, 0, err)
		return err
	}

	var stations []overpass.Station
	if !noValidate {
		area := overpass.Area{AdminLevel: cfg.Overpass.AdminLevel}
		if city != "" {
			area.Name = city
		} else {
			area.BBox = &bbox
		}
		stations, err = ovp.FitnessStations(ctx, area)
		if err != nil {
			_ = st.FinishRun(ctx, run.ID, 0, err)
			return err
		}
		if err := st.SaveStations(ctx, cityKey, stations); err != nil {
			_ = st.FinishRun(ctx, run.ID, 0, err)
			return err
		}

		var summary validate.Summary
		candidates, summary = validate.Against(candidates, stations, validate.Options{
			MaxDistanceM: cfg.Validate.MaxDistanceM,
			Boost:        cfg.Validate.Boost,
			Cap:          cfg.Validate.Cap,
			Penalty:      cfg.Validate.Penalty,
			MinScore:     cfg.Validate.MinScore,
		})
		log.Info("validated against OSM",
			zap.Int("stations", len(stations)),
			zap.Int("matched", summary.Matched),
			zap.Int("dropped", summary.Dropped),
		)
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if err := st.SaveCandidates(ctx, run.ID, candidates); err != nil {
		_ = st.FinishRun(ctx, run.ID, 0, err)
		return err
	}
	if err := st.FinishRun(ctx, run.ID, len(candidates), nil); err != nil {
		return err
	}

	if err := writeExports(outDir, run.ID, candidates, stations); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "run %s: %d candidates (profile %s), exported to %s\n",
		run.ID, len(candidates), profileName, outDir)
	return nil
}

// detectTiles splits the bounding box into fetchable tiles and runs detection
// over them concurrently. A shared circuit breaker stops the fan-out from
// hammering the API once it starts failing consistently.
func detectTiles(cmd *cobra.Command, cop copernicus.Client, profile detect.Profile, bbox georef.BBox) ([]detect.Candidate, error) {
	ctx := cmd.Context()

	tileSize, _ := cmd.Flags().GetInt("tile-size")
	noDEM, _ := cmd.Flags().GetBool("no-dem")
	if tileSize <= 0 {
		tileSize = cfg.Copernicus.TileSizePx
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -cfg.Copernicus.LookbackDays)

	tiles := bbox.Split(tileSizeDeg(tileSize))
	results := make([][]detect.Candidate, len(tiles))

	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("copernicus", "fetch")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Detect.Workers)
	for i, tile := range tiles {
		i, tile := i, tile
		g.Go(func() error {
			w, h := tileDims(tile, cfg.Copernicus.ResolutionM)

			scene, err := resilience.DoVal(gctx, retryCfg, func(ctx context.Context) (*copernicus.Scene, error) {
				return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*copernicus.Scene, error) {
					return cop.FetchScene(ctx, copernicus.SceneRequest{
						BBox:          tile,
						Width:         w,
						Height:        h,
						From:          from,
						To:            to,
						MaxCloudCover: cfg.Copernicus.MaxCloudCover,
					})
				})
			})
			if err != nil {
				return eris.Wrapf(err, "tile %s", tile)
			}

			var dem *raster.Grid
			if !noDEM {
				dem, err = resilience.DoVal(gctx, retryCfg, func(ctx context.Context) (*raster.Grid, error) {
					return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*raster.Grid, error) {
						return cop.FetchDEM(ctx, copernicus.DEMRequest{BBox: tile, Width: w, Height: h})
					})
				})
				if err != nil {
					return eris.Wrapf(err, "tile %s: dem", tile)
				}
			}

			res, err := detect.New(profile).Detect(gctx, detect.Scene{
				Red: scene.Red, Green: scene.Green, Blue: scene.Blue, NIR: scene.NIR,
				DEM:     dem,
				BBox:    tile,
				Sources: []string{"sentinel-2-l2a", "copernicus-dem"},
			})
			if err != nil {
				return eris.Wrapf(err, "tile %s", tile)
			}
			results[i] = res.Candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeCandidates(profile.Name, results), nil
}

// mergeCandidates flattens per-tile results, re-sorts by score and assigns
// globally unique IDs.
func mergeCandidates(prefix string, results [][]detect.Candidate) []detect.Candidate {
	var merged []detect.Candidate
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	for i := range merged {
		merged[i].ID = fmt.Sprintf("%s_%d", prefix, i)
	}
	return merged
}

// tileSizeDeg converts a tile size in pixels to degrees of latitude.
func tileSizeDeg(tileSizePx int) float64 {
	return float64(tileSizePx) * cfg.Copernicus.ResolutionM / 111320
}

// tileDims computes the pixel dimensions of a tile at the given ground
// resolution, capped at the process API's 2500px limit.
func tileDims(tile georef.BBox, resolutionM float64) (int, int) {
	midLat := (tile.South + tile.North) / 2
	widthM := georef.Haversine(midLat, tile.West, midLat, tile.East)
	heightM := georef.Haversine(tile.South, tile.West, tile.North, tile.West)

	w := clampDim(int(math.Round(widthM / resolutionM)))
	h := clampDim(int(math.Round(heightM / resolutionM)))
	return w, h
}

func clampDim(d int) int {
	if d < 1 {
		return 1
	}
	if d > 2500 {
		return 2500
	}
	return d
}

// loadProfile resolves a named profile from the configured file or the
// built-in set.
func loadProfile(name string) (detect.Profile, error) {
	var (
		profiles map[string]detect.Profile
		err      error
	)
	if cfg.Detect.ProfilesPath != "" {
		profiles, err = detect.LoadProfiles(cfg.Detect.ProfilesPath)
	} else {
		profiles, err = detect.BuiltinProfiles()
	}
	if err != nil {
		return detect.Profile{}, err
	}
	profile, ok := profiles[name]
	if !ok {
		return detect.Profile{}, eris.Errorf("unknown detection profile %q", name)
	}
	return profile, nil
}
