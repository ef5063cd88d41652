package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"nbp-rate-archive/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App     AppConfig      `mapstructure:"app"`
	Logging logging.Config `mapstructure:"logging"`
	NBP     NBPConfig      `mapstructure:"nbp"`
	Archive ArchiveConfig  `mapstructure:"archive"`
	Ingest  IngestConfig   `mapstructure:"ingest"`
	Export  ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// NBPConfig captures NBP API connectivity.
type NBPConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Table          string        `mapstructure:"table"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retries        int           `mapstructure:"retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxChunkDays   int           `mapstructure:"max_chunk_days"`
}

// ArchiveConfig governs the on-disk artifact tree.
type ArchiveConfig struct {
	Root      string `mapstructure:"root"`
	StartYear int    `mapstructure:"start_year"`
	Compress  bool   `mapstructure:"compress"`
	Timezone  string `mapstructure:"timezone"`
}

// IngestConfig tunes the catch-up pass.
type IngestConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NBPARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nbparchive")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("nbp.base_url", "https://api.nbp.pl/api")
	v.SetDefault("nbp.table", "A")
	v.SetDefault("nbp.request_timeout", "60s")
	v.SetDefault("nbp.retries", 3)
	v.SetDefault("nbp.backoff_base", "1s")
	v.SetDefault("nbp.user_agent", "nbparchive/1.0")
	// The NBP range endpoint rejects spans above 93 days.
	v.SetDefault("nbp.max_chunk_days", 93)

	v.SetDefault("archive.root", "docs/exc")
	v.SetDefault("archive.start_year", 2021)
	v.SetDefault("archive.compress", false)
	v.SetDefault("archive.timezone", "Europe/Warsaw")

	v.SetDefault("ingest.lookback_days", 7)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Archive.Root == "" {
		return fmt.Errorf("archive.root must be set")
	}
	if c.Archive.StartYear < 2002 {
		return fmt.Errorf("archive.start_year must be 2002 or later (NBP API history floor)")
	}
	if c.Archive.StartYear > time.Now().Year() {
		return fmt.Errorf("archive.start_year cannot be in the future")
	}
	if c.NBP.MaxChunkDays <= 0 || c.NBP.MaxChunkDays > 93 {
		return fmt.Errorf("nbp.max_chunk_days must be between 1 and 93")
	}
	if c.NBP.Retries < 0 {
		return fmt.Errorf("nbp.retries cannot be negative")
	}
	if c.NBP.BackoffBase <= 0 {
		return fmt.Errorf("nbp.backoff_base must be greater than zero")
	}
	if c.Ingest.LookbackDays <= 0 {
		return fmt.Errorf("ingest.lookback_days must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// StartDate resolves the configured start year to January 1st of that year.
func (c *Config) StartDate() time.Time {
	return time.Date(c.Archive.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Location resolves the archive timezone; the NBP publication calendar
// follows the Warsaw clock.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Archive.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Archive.Timezone, err)
	}
	return loc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
