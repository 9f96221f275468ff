// Package config provides configuration management for ytmp3.
// Configuration is loaded from environment variables (and optionally a yaml
// file) with sensible defaults.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DefaultListenAddr   = "0.0.0.0:5000"
	DefaultOutputDir    = "downloads"
	DefaultDataDir      = "data"
	DefaultTitleMaxByte = 120

	// Database filename
	DBFilename = "ytmp3.db"

	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"
)

// Config is the application configuration.
type Config struct {
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info" yaml:"logLevel"`

	HTTP struct {
		Addr              string        `env:"LISTEN_ADDR" env-default:"0.0.0.0:5000" yaml:"addr"`
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s" yaml:"idleTimeout"`
		MaxBodyBytes      int64         `env:"HTTP_MAX_BODY_BYTES" env-default:"65536" yaml:"maxBodyBytes"`
	} `yaml:"http"`

	// OutputDir is the managed directory converted files are written to and served from.
	OutputDir string `env:"OUTPUT_DIR" env-default:"downloads" yaml:"outputDir"`
	// StaticDir overrides the embedded front end when set.
	StaticDir string `env:"STATIC_DIR" yaml:"staticDir"`
	DataDir   string `env:"DATA_DIR" env-default:"data" yaml:"dataDir"`

	HistoryEnabled bool `env:"HISTORY_ENABLED" env-default:"true" yaml:"historyEnabled"`

	Tools struct {
		YtDlp  string `env:"YTDLP_BINARY" env-default:"yt-dlp" yaml:"ytdlp"`
		FFmpeg string `env:"FFMPEG_BINARY" env-default:"ffmpeg" yaml:"ffmpeg"`
	} `yaml:"tools"`

	Convert struct {
		TitleMaxBytes int    `env:"TITLE_MAX_BYTES" env-default:"120" yaml:"titleMaxBytes"`
		AudioQuality  string `env:"AUDIO_QUALITY" env-default:"0" yaml:"audioQuality"`
		// Timeout bounds a single yt-dlp run; zero disables it.
		Timeout time.Duration `env:"CONVERT_TIMEOUT" env-default:"0s" yaml:"timeout"`
	} `yaml:"convert"`

	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load reads configuration from the yaml file at path (when non-empty) and
// then applies environment overrides. Relative directories are made absolute.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.OutputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("invalid output dir: %w", err)
	}
	if cfg.DataDir, err = filepath.Abs(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("invalid data dir: %w", err)
	}
	if cfg.StaticDir != "" {
		if cfg.StaticDir, err = filepath.Abs(cfg.StaticDir); err != nil {
			return nil, fmt.Errorf("invalid static dir: %w", err)
		}
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Convert.TitleMaxBytes <= 0 {
		return fmt.Errorf("invalid TITLE_MAX_BYTES: must be positive")
	}
	if c.Convert.Timeout < 0 {
		return fmt.Errorf("invalid CONVERT_TIMEOUT: must not be negative")
	}
	if c.Tools.YtDlp == "" || c.Tools.FFmpeg == "" {
		return fmt.Errorf("tool binaries must not be empty")
	}
	return nil
}

// DBPath returns the full path to the SQLite history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)
