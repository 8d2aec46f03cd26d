package types

import "encoding/json"

// HeadPosition is the coarse orientation label assigned to a sampled frame.
type HeadPosition string

const (
	HeadForward HeadPosition = "forward"
	HeadLeft    HeadPosition = "left"
	HeadRight   HeadPosition = "right"
	HeadAway    HeadPosition = "away"
	HeadUnknown HeadPosition = "unknown"
)

// Detection is one face found in a frame. Coordinates are fractions of the
// frame width/height.
type Detection struct {
	XMin   float64 `json:"xmin"`
	YMin   float64 `json:"ymin"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score"`
}

// Area returns the relative area of the bounding box.
func (d Detection) Area() float64 {
	return d.Width * d.Height
}

// DetectionResult matches the JSON structure returned by the face workers
type DetectionResult struct {
	Detections []Detection `json:"detections"`
}

// ErrorResult captures the error object returned by a worker on failure
type ErrorResult struct {
	Error string `json:"error"`
}

// Observation is the aggregated result for one second of video.
type Observation struct {
	Time                  int          `json:"time"`
	HeadPosition          HeadPosition `json:"head_position"`
	MultipleFaceDetection bool         `json:"multiple_face_detection"`
	ScreenshotURL         string       `json:"screenshot_url,omitempty"`
}

// Report is the ordered list of observations for one video.
type Report struct {
	Observations []Observation
}

// MarshalJSON renders the report as {"analysis_result": [...]}, never null.
func (r Report) MarshalJSON() ([]byte, error) {
	obs := r.Observations
	if obs == nil {
		obs = []Observation{}
	}
	return json.Marshal(struct {
		AnalysisResult []Observation `json:"analysis_result"`
	}{obs})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	var wire struct {
		AnalysisResult []Observation `json:"analysis_result"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Observations = wire.AnalysisResult
	return nil
}
