package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/urbansports/fieldscout/internal/georef"
	"github.com/urbansports/fieldscout/pkg/overpass"
)

// Config holds the full application configuration.
type Config struct {
	Copernicus CopernicusConfig     `yaml:"copernicus" mapstructure:"copernicus"`
	Overpass   OverpassConfig       `yaml:"overpass" mapstructure:"overpass"`
	Detect     DetectConfig         `yaml:"detect" mapstructure:"detect"`
	Validate   ValidateConfig       `yaml:"validate" mapstructure:"validate"`
	Grid       GridConfig           `yaml:"grid" mapstructure:"grid"`
	Store      StoreConfig          `yaml:"store" mapstructure:"store"`
	Export     ExportConfig         `yaml:"export" mapstructure:"export"`
	Fetch      FetchConfig          `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig         `yaml:"server" mapstructure:"server"`
	Log        LogConfig            `yaml:"log" mapstructure:"log"`
	Cities     map[string][]float64 `yaml:"cities" mapstructure:"cities"`
}

// CopernicusConfig holds Copernicus Data Space credentials and scene
// selection settings.
type CopernicusConfig struct {
	Username      string  `yaml:"username" mapstructure:"username"`
	Password      string  `yaml:"password" mapstructure:"password"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	TokenURL      string  `yaml:"token_url" mapstructure:"token_url"`
	MaxCloudCover float64 `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	LookbackDays  int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	ResolutionM   float64 `yaml:"resolution_m" mapstructure:"resolution_m"`
	TileSizePx    int     `yaml:"tile_size_px" mapstructure:"tile_size_px"`
}

// OverpassConfig configures OpenStreetMap queries.
type OverpassConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	AdminLevel  int    `yaml:"admin_level" mapstructure:"admin_level"`
	UseFallback bool   `yaml:"use_fallback" mapstructure:"use_fallback"`
}

// DetectConfig configures the detection pipeline.
type DetectConfig struct {
	ProfilesPath  string `yaml:"profiles_path" mapstructure:"profiles_path"`
	MaxCandidates int    `yaml:"max_candidates" mapstructure:"max_candidates"`
	Workers       int    `yaml:"workers" mapstructure:"workers"`
}

// ValidateConfig configures OSM cross-validation of candidates.
type ValidateConfig struct {
	MaxDistanceM float64 `yaml:"max_distance_m" mapstructure:"max_distance_m"`
	Boost        float64 `yaml:"boost" mapstructure:"boost"`
	Cap          float64 `yaml:"cap" mapstructure:"cap"`
	Penalty      float64 `yaml:"penalty" mapstructure:"penalty"`
	MinScore     float64 `yaml:"min_score" mapstructure:"min_score"`
}

// GridConfig configures fishnet aggregation.
type GridConfig struct {
	CellSizeM    float64 `yaml:"cell_size_m" mapstructure:"cell_size_m"`
	AreaWeighted bool    `yaml:"area_weighted" mapstructure:"area_weighted"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ExportConfig configures file outputs.
type ExportConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Precision int    `yaml:"precision" mapstructure:"precision"`
}

// FetchConfig configures the shared HTTP transport.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// builtinCities maps folded city names to west, south, east, north bounds.
var builtinCities = map[string][]float64{
	"dusseldorf": {6.6895, 51.1245, 6.9398, 51.3522},
	"cologne":    {6.7725, 50.8304, 7.1620, 51.0849},
	"berlin":     {13.0884, 52.3383, 13.7612, 52.6755},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIELDSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "fieldscout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("copernicus.username", "")
	v.SetDefault("copernicus.password", "")
	v.SetDefault("copernicus.base_url", "https://sh.dataspace.copernicus.eu")
	v.SetDefault("copernicus.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("copernicus.max_cloud_cover", 20)
	v.SetDefault("copernicus.lookback_days", 30)
	v.SetDefault("copernicus.resolution_m", 10)
	v.SetDefault("copernicus.tile_size_px", 1024)
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.admin_level", 6)
	v.SetDefault("overpass.use_fallback", true)
	v.SetDefault("detect.max_candidates", 200)
	v.SetDefault("detect.workers", 4)
	v.SetDefault("validate.max_distance_m", 200)
	v.SetDefault("validate.boost", 0.3)
	v.SetDefault("validate.cap", 0.95)
	v.SetDefault("validate.penalty", 0.7)
	v.SetDefault("validate.min_score", 0.3)
	v.SetDefault("grid.cell_size_m", 500)
	v.SetDefault("grid.area_weighted", true)
	v.SetDefault("export.dir", "out")
	v.SetDefault("export.precision", 5)
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "fieldscout/1.0")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Copernicus.Username == "" || cfg.Copernicus.Password == "" {
		if creds, err := loadCredentialsFile(); err == nil {
			if cfg.Copernicus.Username == "" {
				cfg.Copernicus.Username = creds.Username
			}
			if cfg.Copernicus.Password == "" {
				cfg.Copernicus.Password = creds.Password
			}
		}
	}

	return &cfg, nil
}

type credentialsFile struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loadCredentialsFile reads ~/.fieldscout/credentials.json, the lowest
// precedence credential source after config and environment.
func loadCredentialsFile() (*credentialsFile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, eris.Wrap(err, "config: resolve home dir")
	}
	data, err := os.ReadFile(filepath.Join(home, ".fieldscout", "credentials.json"))
	if err != nil {
		return nil, eris.Wrap(err, "config: read credentials file")
	}
	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, eris.Wrap(err, "config: parse credentials file")
	}
	return &creds, nil
}

// CityBBox resolves a city name to its bounding box. Configured cities take
// precedence over the built-in registry; lookup is accent- and
// case-insensitive, so "Düsseldorf" and "dusseldorf" resolve alike.
func (c *Config) CityBBox(name string) (georef.BBox, error) {
	folded := overpass.FoldName(name)

	bounds, ok := c.Cities[folded]
	if !ok {
		bounds, ok = builtinCities[folded]
	}
	if !ok {
		return georef.BBox{}, eris.Errorf("config: unknown city %q", name)
	}
	if len(bounds) != 4 {
		return georef.BBox{}, eris.Errorf("config: city %q needs [west, south, east, north], got %d values", name, len(bounds))
	}

	bbox := georef.BBox{West: bounds[0], South: bounds[1], East: bounds[2], North: bounds[3]}
	if err := bbox.Validate(); err != nil {
		return georef.BBox{}, eris.Wrapf(err, "config: city %q", name)
	}
	return bbox, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
