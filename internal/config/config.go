package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete proctor configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Capture  CaptureConfig  `yaml:"capture"`
	Storage  StorageConfig  `yaml:"storage"`
	Download DownloadConfig `yaml:"download"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP surface settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"public_url"` // base for screenshot URLs
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DetectorConfig selects and tunes the face detector
type DetectorConfig struct {
	Kind           string        `yaml:"kind"` // python, http
	Python         string        `yaml:"python"`
	Script         string        `yaml:"script"`
	URL            string        `yaml:"url"`
	Engines        int           `yaml:"engines"`
	MinConfidence  float64       `yaml:"min_confidence"`
	ModelSelection int           `yaml:"model_selection"` // 0 short range, 1 full range
	Timeout        time.Duration `yaml:"timeout"`
}

// CaptureConfig contains anomaly screenshot settings
type CaptureConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxWidth    int  `yaml:"max_width"`
	JPEGQuality int  `yaml:"jpeg_quality"`
}

// StorageConfig selects the artifact store
type StorageConfig struct {
	Kind        string `yaml:"kind"` // local, postgres
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
}

// DownloadConfig contains video acquisition settings
type DownloadConfig struct {
	TempDir string        `yaml:"temp_dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Detector: DetectorConfig{
			Kind:           "python",
			Python:         "python3",
			Script:         "python/face_worker.py",
			Engines:        1,
			MinConfidence:  0.5,
			ModelSelection: 1,
			Timeout:        30 * time.Second,
		},
		Capture: CaptureConfig{
			MaxWidth:    640,
			JPEGQuality: 85,
		},
		Storage: StorageConfig{
			Kind: "local",
			Dir:  "data/artifacts",
		},
		Download: DownloadConfig{
			Timeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path skips the file.
// Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv builds the database URL from POSTGRES_* variables when none is configured
// and lets PROCTOR_PUBLIC_URL override the public base URL.
func applyEnv(cfg *Config) {
	if cfg.Storage.DatabaseURL == "" {
		if host := os.Getenv("POSTGRES_HOST"); host != "" {
			user := os.Getenv("POSTGRES_USER")
			pass := os.Getenv("POSTGRES_PASSWORD")
			name := os.Getenv("POSTGRES_DB")
			port := os.Getenv("POSTGRES_PORT")
			if port == "" {
				port = "5432"
			}
			cfg.Storage.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
		}
	}
	if u := os.Getenv("PROCTOR_PUBLIC_URL"); u != "" {
		cfg.Server.PublicURL = u
	}
}
