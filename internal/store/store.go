package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no artifact has the requested name.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName rejects names that could escape the store.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Artifact is a stored screenshot.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// ArtifactInfo describes a stored artifact without its payload.
type ArtifactInfo struct {
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	URL         string
}

// Artifacts is a durable store for anomaly screenshots. Put returns the URL the
// HTTP server exposes the artifact under.
type Artifacts interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Get(ctx context.Context, name string) (*Artifact, error)
	List(ctx context.Context) ([]ArtifactInfo, error)
	Reset(ctx context.Context) error
	Close(ctx context.Context)
}

// CleanName validates a caller-assigned name: slash-separated segments of
// [A-Za-z0-9._-], no empty, "." or ".." segments.
func CleanName(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || len(name) > 255 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		for _, r := range seg {
			ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
				r == '.' || r == '_' || r == '-'
			if !ok {
				return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
			}
		}
	}
	return name, nil
}

// URLFor joins the public base URL and an artifact name.
func URLFor(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/artifacts/" + name
}
