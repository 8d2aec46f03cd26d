package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresmejia3/proctor/internal/fetch"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/video"
)

// Service is the single entry point shared by the HTTP handlers and the CLI.
type Service struct {
	fetcher  fetch.Fetcher
	analyzer *Analyzer
	tempDir  string
	logger   *zap.Logger
}

// NewService builds a Service. An empty tempDir means os.TempDir().
func NewService(fetcher fetch.Fetcher, analyzer *Analyzer, tempDir string, logger *zap.Logger) *Service {
	return &Service{fetcher: fetcher, analyzer: analyzer, tempDir: tempDir, logger: logger}
}

// AnalyzeURL downloads and analyzes one video. Nothing it writes locally
// survives the call.
func (s *Service) AnalyzeURL(ctx context.Context, rawURL string) (*types.Report, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, types.ErrMissingInput
	}

	return s.run(ctx, func(workDir string) (string, error) {
		dst := filepath.Join(workDir, "source.mp4")
		start := time.Now()
		if err := s.fetcher.Fetch(ctx, rawURL, dst); err != nil {
			var dlErr *types.DownloadError
			if !errors.As(err, &dlErr) {
				err = &types.DownloadError{URL: rawURL, Err: err}
			}
			return "", err
		}
		s.logger.Debug("video downloaded", zap.String("url", rawURL), zap.Duration("took", time.Since(start)))
		return dst, nil
	}, nil)
}

// AnalyzeFile analyzes a video that is already on local disk.
func (s *Service) AnalyzeFile(ctx context.Context, path string, onFrame func(video.Frame)) (*types.Report, error) {
	if strings.TrimSpace(path) == "" {
		return nil, types.ErrMissingInput
	}
	return s.run(ctx, func(string) (string, error) { return path, nil }, onFrame)
}

func (s *Service) run(ctx context.Context, acquire func(workDir string) (string, error), onFrame func(video.Frame)) (*types.Report, error) {
	runID := uuid.NewString()
	log := s.logger.With(zap.String("run", runID))

	workDir, err := os.MkdirTemp(s.tempDir, "proctor-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Error("failed to remove work dir", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	path, err := acquire(workDir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report, err := s.analyzer.Analyze(ctx, path, RunOptions{RunID: runID, WorkDir: workDir, OnFrame: onFrame})
	if err != nil {
		return nil, err
	}
	log.Info("analysis complete",
		zap.Int("observations", len(report.Observations)),
		zap.Duration("took", time.Since(start)))
	return report, nil
}
