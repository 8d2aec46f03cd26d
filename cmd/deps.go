package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/proctor/internal/config"
	"github.com/andresmejia3/proctor/internal/fetch"
	"github.com/andresmejia3/proctor/internal/pipeline"
	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/video"
	"github.com/andresmejia3/proctor/internal/worker"
	"go.uber.org/zap"
)

// detector is what the pipeline needs plus teardown.
type detector interface {
	pipeline.Detector
	Close() error
}

// openArtifacts connects the configured artifact store.
func openArtifacts(ctx context.Context, c *config.Config) (store.Artifacts, error) {
	switch c.Storage.Kind {
	case "postgres":
		s, err := store.NewPostgres(ctx, c.Storage.DatabaseURL, c.Server.PublicURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return s, nil
	default:
		return store.NewLocal(c.Storage.Dir, c.Server.PublicURL)
	}
}

// newDetector starts the configured detection backend. ctx bounds the lifetime
// of any spawned worker processes.
func newDetector(ctx context.Context, c *config.Config, log *zap.Logger) (detector, error) {
	d := c.Detector
	var factory worker.Factory
	switch d.Kind {
	case "http":
		factory = func(ctx context.Context, id int) (worker.Engine, error) {
			return worker.NewHTTPDetector(d.URL, d.MinConfidence, d.Timeout), nil
		}
	default:
		wc := worker.Config{
			Python:         d.Python,
			Script:         d.Script,
			MinConfidence:  d.MinConfidence,
			ModelSelection: d.ModelSelection,
			ReadTimeout:    d.Timeout,
		}
		factory = func(ctx context.Context, id int) (worker.Engine, error) {
			return worker.NewPythonWorker(ctx, id, wc)
		}
	}
	pool, err := worker.NewPool(ctx, d.Engines, factory, log)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// newService assembles the pipeline around already constructed collaborators.
func newService(c *config.Config, det pipeline.Detector, artifacts store.Artifacts, capture bool, log *zap.Logger) *pipeline.Service {
	if !capture {
		artifacts = nil
	}
	analyzer := pipeline.NewAnalyzer(video.NewFFmpegOpener(), det, artifacts, pipeline.CaptureOptions{
		Enabled:     capture,
		MaxWidth:    c.Capture.MaxWidth,
		JPEGQuality: c.Capture.JPEGQuality,
	}, log)
	return pipeline.NewService(fetch.New(c.Download.Timeout), analyzer, c.Download.TempDir, log)
}
