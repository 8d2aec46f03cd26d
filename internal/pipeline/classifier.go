package pipeline

import (
	"math"

	"github.com/andresmejia3/proctor/internal/types"
)

// Horizontal thresholds on the face's relative xmin. Both are strict.
const (
	leftThreshold  = 0.3
	rightThreshold = 0.7
)

// Classify maps the detections of one sampled frame to an orientation and the
// multiple-face flag.
func Classify(dets []types.Detection) (types.HeadPosition, bool) {
	multiple := len(dets) > 1
	if len(dets) == 0 {
		return types.HeadAway, multiple
	}
	return Orientation(PrimaryFace(dets)), multiple
}

// PrimaryFace picks the face that drives orientation when several are present:
// the largest box, ties going to the earliest one. dets must be non-empty.
func PrimaryFace(dets []types.Detection) types.Detection {
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Area() > best.Area() {
			best = d
		}
	}
	return best
}

// Orientation is a horizontal-position heuristic, not a pose estimate.
func Orientation(d types.Detection) types.HeadPosition {
	switch {
	case math.IsNaN(d.XMin):
		return types.HeadUnknown
	case d.XMin < leftThreshold:
		return types.HeadLeft
	case d.XMin > rightThreshold:
		return types.HeadRight
	default:
		return types.HeadForward
	}
}
