package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/andresmejia3/proctor/internal/types"
)

// HTTPDetector delegates detection to a remote service that accepts a JPEG
// body and answers with the worker JSON schema.
type HTTPDetector struct {
	url           string
	minConfidence float64
	client        *http.Client
}

func NewHTTPDetector(url string, minConfidence float64, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		url:           url,
		minConfidence: minConfidence,
		client:        &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDetector) Detect(ctx context.Context, frame []byte) ([]types.Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	q := req.URL.Query()
	q.Set("min_confidence", strconv.FormatFloat(d.minConfidence, 'f', -1, 64))
	req.URL.RawQuery = q.Encode()

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		// Error bodies use the same {"error": ...} shape when the service can produce one
		if _, derr := decodeResponse(body); derr != nil {
			return nil, fmt.Errorf("detection service returned %d: %w", resp.StatusCode, derr)
		}
		return nil, fmt.Errorf("detection service returned %d", resp.StatusCode)
	}
	return decodeResponse(body)
}

// Healthy is always true; there is no local process to restart.
func (d *HTTPDetector) Healthy() bool { return true }

func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
