package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/video"
)

// Detector finds faces in one JPEG frame.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]types.Detection, error)
}

// Observer runs the detector on sampled frames. A failed detection counts as
// no face found; it is never retried.
type Observer struct {
	detector Detector
	logger   *zap.Logger
}

func NewObserver(detector Detector, logger *zap.Logger) *Observer {
	return &Observer{detector: detector, logger: logger}
}

func (o *Observer) Observe(ctx context.Context, f video.Frame) []types.Detection {
	dets, err := o.detector.Detect(ctx, f.Data)
	if err != nil {
		o.logger.Warn("face detection failed, treating frame as empty",
			zap.Int("frame", f.Index),
			zap.Int("second", f.Second),
			zap.Error(err))
		return nil
	}
	return dets
}
