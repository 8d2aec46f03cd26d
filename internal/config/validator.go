package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration and fills derived defaults
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.PublicURL == "" {
		host := cfg.Server.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		cfg.Server.PublicURL = "http://" + host
	}
	if u, err := url.Parse(cfg.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.public_url must be an absolute URL, got %q", cfg.Server.PublicURL)
	}

	if err := validateDetector(&cfg.Detector); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if cfg.Capture.MaxWidth < 0 {
		return fmt.Errorf("capture.max_width must be >= 0")
	}
	if cfg.Capture.JPEGQuality < 1 || cfg.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be between 1 and 100, got %d", cfg.Capture.JPEGQuality)
	}

	switch cfg.Storage.Kind {
	case "local":
		if cfg.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for local storage")
		}
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url (or POSTGRES_HOST) is required for postgres storage")
		}
	default:
		return fmt.Errorf("storage.kind must be local or postgres, got %q", cfg.Storage.Kind)
	}

	if cfg.Download.Timeout < 0 {
		return fmt.Errorf("download.timeout must be >= 0")
	}

	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}
	return nil
}

func validateDetector(d *DetectorConfig) error {
	if d.MinConfidence <= 0 || d.MinConfidence > 1.0 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0, got %f", d.MinConfidence)
	}
	if d.ModelSelection != 0 && d.ModelSelection != 1 {
		return fmt.Errorf("model_selection must be 0 or 1, got %d", d.ModelSelection)
	}
	if d.Engines < 1 {
		d.Engines = 1
	}
	switch d.Kind {
	case "python":
		if d.Python == "" || d.Script == "" {
			return fmt.Errorf("python and script are required for the python detector")
		}
	case "http":
		if u, err := url.Parse(d.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("url must be an absolute URL for the http detector, got %q", d.URL)
		}
	default:
		return fmt.Errorf("kind must be python or http, got %q", d.Kind)
	}
	return nil
}
