package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/video"
)

// CaptureOptions controls anomaly screenshots.
type CaptureOptions struct {
	Enabled     bool
	MaxWidth    int // 0 keeps the decoded width
	JPEGQuality int
}

// RunOptions carries per-run state into Analyze.
type RunOptions struct {
	// RunID prefixes artifact names.
	RunID string
	// WorkDir holds screenshot temporaries. The caller owns and removes it.
	WorkDir string
	// OnFrame, if set, is called for every decoded frame (sampled or not).
	OnFrame func(video.Frame)
}

// Analyzer turns one local video file into a Report.
type Analyzer struct {
	opener    video.Opener
	observer  *Observer
	artifacts store.Artifacts
	capture   CaptureOptions
	logger    *zap.Logger
}

// NewAnalyzer wires the pipeline. artifacts may be nil when capture is disabled.
func NewAnalyzer(opener video.Opener, detector Detector, artifacts store.Artifacts, capture CaptureOptions, logger *zap.Logger) *Analyzer {
	if artifacts == nil {
		capture.Enabled = false
	}
	if capture.JPEGQuality <= 0 || capture.JPEGQuality > 100 {
		capture.JPEGQuality = 85
	}
	return &Analyzer{
		opener:    opener,
		observer:  NewObserver(detector, logger),
		artifacts: artifacts,
		capture:   capture,
		logger:    logger,
	}
}

// Analyze consumes the whole video and returns one observation per second.
// The decoder is released on every exit path.
func (a *Analyzer) Analyze(ctx context.Context, path string, opts RunOptions) (report *types.Report, err error) {
	src, err := a.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(src))

	sampler := NewSampler()
	observations := make([]types.Observation, 0)
	frames := 0

	for src.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := src.Frame()
		frames++
		if opts.OnFrame != nil {
			opts.OnFrame(f)
		}
		if !sampler.Admit(f.Second) {
			continue
		}

		dets := a.observer.Observe(ctx, f)
		position, multiple := Classify(dets)
		obs := types.Observation{
			Time:                  f.Second,
			HeadPosition:          position,
			MultipleFaceDetection: multiple,
		}
		if a.capture.Enabled && position != types.HeadForward {
			obs.ScreenshotURL = a.captureFrame(ctx, opts, f)
		}
		observations = append(observations, obs)
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.logger.Debug("video analyzed",
		zap.String("run", opts.RunID),
		zap.Int("frames", frames),
		zap.Int("observations", len(observations)),
		zap.Float64("fps", src.FrameRate()))
	return &types.Report{Observations: observations}, nil
}

// captureFrame stores a screenshot of f and returns its URL, or "" on any failure.
func (a *Analyzer) captureFrame(ctx context.Context, opts RunOptions, f video.Frame) string {
	name := fmt.Sprintf("%s/%d.jpg", opts.RunID, f.Second)
	tmp := filepath.Join(opts.WorkDir, fmt.Sprintf("shot-%d.jpg", f.Second))
	log := a.logger.With(zap.String("artifact", name), zap.Int("second", f.Second))

	if err := a.writeScreenshot(tmp, f.Data); err != nil {
		log.Warn("screenshot encode failed", zap.Error(err))
		return ""
	}
	defer os.Remove(tmp)

	file, err := os.Open(tmp)
	if err != nil {
		log.Warn("screenshot reopen failed", zap.Error(err))
		return ""
	}
	defer file.Close()

	url, err := a.artifacts.Put(ctx, name, "image/jpeg", file)
	if err != nil {
		log.Warn("screenshot upload failed", zap.Error(err))
		return ""
	}
	return url
}

func (a *Analyzer) writeScreenshot(path string, data []byte) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if a.capture.MaxWidth > 0 && img.Bounds().Dx() > a.capture.MaxWidth {
		img = imaging.Resize(img, a.capture.MaxWidth, 0, imaging.Lanczos)
	}
	return imaging.Save(img, path, imaging.JPEGQuality(a.capture.JPEGQuality))
}
