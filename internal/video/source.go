// Package video exposes a decoded video as a sequential stream of JPEG frames.
package video

import (
	"bufio"
	"context"
	"io"
	"math"

	"github.com/andresmejia3/proctor/internal/utils"
)

const megabyte = 1024 * 1024

// Frame is one decoded image plus its position in the stream.
type Frame struct {
	Index  int
	Second int
	// Data is a JPEG image. It is only valid until the next call to Next.
	Data []byte
}

// Source is a lazy, finite, non-restartable sequence of frames.
// Usage mirrors bufio.Scanner: loop on Next, read Frame, check Err, then Close.
type Source interface {
	FrameRate() float64
	Next() bool
	Frame() Frame
	Err() error
	Close() error
}

// Opener opens a local video file as a Source.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// SecondOf derives the playback second of a frame index.
func SecondOf(index int, fps float64) int {
	return int(math.Floor(float64(index) / utils.NormalizeFrameRate(fps)))
}

// StreamSource splits an MJPEG byte stream into frames.
type StreamSource struct {
	scanner *bufio.Scanner
	fps     float64
	index   int
	frame   Frame
	err     error
	closer  io.Closer
}

// NewStreamSource wraps r. A non-positive rate is normalized to 30 fps.
// If r is an io.Closer it is closed by Close.
func NewStreamSource(r io.Reader, fps float64) *StreamSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	s := &StreamSource{
		scanner: scanner,
		fps:     utils.NormalizeFrameRate(fps),
		index:   -1,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *StreamSource) FrameRate() float64 { return s.fps }

func (s *StreamSource) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.scanner.Scan() {
		s.err = s.scanner.Err()
		return false
	}
	s.index++
	s.frame = Frame{
		Index:  s.index,
		Second: SecondOf(s.index, s.fps),
		Data:   s.scanner.Bytes(),
	}
	return true
}

func (s *StreamSource) Frame() Frame { return s.frame }

func (s *StreamSource) Err() error { return s.err }

func (s *StreamSource) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}
