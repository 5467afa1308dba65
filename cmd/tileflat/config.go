package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phanxgames/tileflat"
)

type logConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type assetConfig struct {
	Root    string `mapstructure:"root"`
	Index   string `mapstructure:"index"`
	CacheMB int    `mapstructure:"cache_mb"`
}

type windowConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Title  string `mapstructure:"title"`
	// ExitWhenDone closes the window once the job has finished and the
	// camera has settled on the result.
	ExitWhenDone bool `mapstructure:"exit_when_done"`
}

// config is the CLI configuration. Values come from, in increasing
// priority: defaults, the config file, .env and the environment
// (TILEFLAT_ prefix), then flags.
type config struct {
	Scene    string           `mapstructure:"scene"`
	Save     bool             `mapstructure:"save"`
	Manifest string           `mapstructure:"manifest"`
	Shadows  bool             `mapstructure:"shadows"`
	Log      logConfig        `mapstructure:"log"`
	Assets   assetConfig      `mapstructure:"assets"`
	Window   windowConfig     `mapstructure:"window"`
	Options  tileflat.Options `mapstructure:"options"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scene", "scene.json")
	v.SetDefault("save", true)
	v.SetDefault("manifest", "")
	v.SetDefault("shadows", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("assets.root", "assets")
	v.SetDefault("assets.index", "")
	v.SetDefault("assets.cache_mb", 256)

	v.SetDefault("window.width", 1280)
	v.SetDefault("window.height", 800)
	v.SetDefault("window.title", "tileflat")
	v.SetDefault("window.exit_when_done", true)

	d := tileflat.DefaultOptions()
	v.SetDefault("options.ppi", d.PPI)
	v.SetDefault("options.quality", d.Quality)
	v.SetDefault("options.format", d.Format)
	v.SetDefault("options.padding_snap", d.PaddingSnap)
	v.SetDefault("options.padding_extra", d.PaddingExtra)
	v.SetDefault("options.chunk.auto", d.Chunk.Auto)
	v.SetDefault("options.chunk.width_squares", d.Chunk.WidthSquares)
	v.SetDefault("options.chunk.height_squares", d.Chunk.HeightSquares)
	v.SetDefault("options.chunk.pad_to_chunk_grid", d.Chunk.PadToChunkGrid)
	v.SetDefault("options.chunk.pixel_size", d.Chunk.PixelSize)
	v.SetDefault("options.thresholds.preferred_min", d.Thresholds.PreferredMin)
	v.SetDefault("options.thresholds.preferred_max", d.Thresholds.PreferredMax)
	v.SetDefault("options.thresholds.hard_max", d.Thresholds.HardMax)
	v.SetDefault("options.keep_background", d.KeepBackground)
	v.SetDefault("options.keep_foreground", d.KeepForeground)
	v.SetDefault("options.target_path", d.TargetPath)
	v.SetDefault("options.name", d.Name)
	v.SetDefault("options.split_bands", d.SplitBands)
	v.SetDefault("options.band_elevation", d.BandElevation)
}

// newFlagSet declares the flags that override configuration keys.
func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("tileflat", pflag.ContinueOnError)
	flags.String("config", "", "config file (default ./tileflat.yaml if present)")
	flags.String("env", ".env", "dotenv file loaded before reading the environment")
	flags.String("scene", "", "scene file to load")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Float64("ppi", 0, "pixels per grid square")
	flags.String("format", "", "raster format (png, jpeg)")
	flags.Bool("split-bands", false, "export background and foreground separately")
	flags.String("manifest", "", "write the export result to this file")
	return flags
}

// loadConfig parses args (without the program and command names) into a
// config and the remaining positional arguments.
func loadConfig(args []string) (config, []string, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return config{}, nil, err
	}

	envFile, _ := flags.GetString("env")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config{}, nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TILEFLAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, _ := flags.GetString("config")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("tileflat")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return config{}, nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, flag := range map[string]string{
		"scene":               "scene",
		"log.level":           "log-level",
		"options.ppi":         "ppi",
		"options.format":      "format",
		"options.split_bands": "split-bands",
		"manifest":            "manifest",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return config{}, nil, err
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Options.Validate(); err != nil {
		return config{}, nil, err
	}
	return cfg, flags.Args(), nil
}
