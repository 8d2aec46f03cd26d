package video

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils"
)

// FFmpegOpener decodes files with the ffmpeg / ffprobe binaries.
type FFmpegOpener struct {
	FFmpeg  string
	FFprobe string
}

// NewFFmpegOpener returns an opener using the binaries found on PATH.
func NewFFmpegOpener() *FFmpegOpener {
	return &FFmpegOpener{FFmpeg: "ffmpeg", FFprobe: "ffprobe"}
}

// Open probes the frame rate and starts the decoder. Both steps failing map to
// UnreadableVideoError. The decoder lives until Close or ctx cancellation.
func (o *FFmpegOpener) Open(ctx context.Context, path string) (Source, error) {
	fps, err := utils.GetVideoFPS(ctx, o.FFprobe, path)
	if err != nil {
		return nil, &types.UnreadableVideoError{Path: path, Err: err}
	}

	ffmpeg := utils.NewFFmpegCmd(ctx, o.FFmpeg, path)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, &types.UnreadableVideoError{Path: path, Err: fmt.Errorf("ffmpeg stdout pipe: %w", err)}
	}
	if err := ffmpeg.Start(); err != nil {
		return nil, &types.UnreadableVideoError{Path: path, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	return &FFmpegSource{
		StreamSource: NewStreamSource(out, fps),
		ctx:          ctx,
		path:         path,
		cmd:          ffmpeg,
		pipe:         out,
	}, nil
}

// FFmpegSource is a StreamSource fed by a running ffmpeg process.
type FFmpegSource struct {
	*StreamSource
	ctx  context.Context
	path string
	cmd  *utils.SafeCommand
	pipe io.ReadCloser

	waitOnce sync.Once
	waitErr  error
}

func (s *FFmpegSource) Next() bool {
	if s.StreamSource.Next() {
		return true
	}
	if s.StreamSource.err != nil {
		// Scanner gave up mid-stream; ffmpeg may be blocked on a full pipe
		s.kill()
	}
	// Reap ffmpeg so its exit status becomes the source error
	if err := s.wait(); err != nil && s.StreamSource.err == nil {
		s.StreamSource.err = err
	}
	return false
}

func (s *FFmpegSource) kill() {
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

func (s *FFmpegSource) wait() error {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		switch {
		case err == nil:
		case s.ctx.Err() != nil:
			s.waitErr = s.ctx.Err()
		default:
			s.waitErr = &types.UnreadableVideoError{Path: s.path, Err: err, Logs: s.cmd.Logs()}
		}
	})
	return s.waitErr
}

// Close stops ffmpeg if it is still running and reaps it. Safe to call more than once.
// Decoder failures are reported through Err, not Close.
func (s *FFmpegSource) Close() error {
	s.pipe.Close()
	s.kill()
	s.wait()
	return nil
}
