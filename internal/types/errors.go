package types

import (
	"errors"
	"fmt"
)

// ErrMissingInput is returned when a request carries no video reference.
var ErrMissingInput = errors.New("no video URL provided")

// DownloadError reports a failed video acquisition.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UnreadableVideoError reports a video the decoder could not open or read.
// Logs holds whatever the decoder wrote to stderr.
type UnreadableVideoError struct {
	Path string
	Err  error
	Logs string
}

func (e *UnreadableVideoError) Error() string {
	return fmt.Sprintf("unreadable video %s: %v", e.Path, e.Err)
}

func (e *UnreadableVideoError) Unwrap() error { return e.Err }
