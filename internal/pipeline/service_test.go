package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/video"
)

// fileFetcher writes a placeholder file, or fails.
type fileFetcher struct {
	err  error
	seen string
}

func (f *fileFetcher) Fetch(ctx context.Context, src, dst string) error {
	f.seen = dst
	if err := os.WriteFile(dst, []byte("partial"), 0644); err != nil {
		return err
	}
	return f.err
}

// pathOpener checks the downloaded file exists before handing out the source.
type pathOpener struct {
	src  *fakeSource
	err  error
	path string
}

func (o *pathOpener) Open(ctx context.Context, path string) (video.Source, error) {
	o.path = path
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if o.err != nil {
		return nil, o.err
	}
	return o.src, nil
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected %s to be empty after the run, found %d entries", dir, len(entries))
	}
}

func TestServiceAnalyzeURL(t *testing.T) {
	tmp := t.TempDir()
	opener := &pathOpener{src: &fakeSource{n: 60, fps: 30, data: testJpeg(t, 32, 32)}}
	det := &scriptedDetector{script: func(int) ([]types.Detection, error) { return nil, nil }}
	artifacts := newMemStore()
	a := NewAnalyzer(opener, det, artifacts, CaptureOptions{Enabled: true}, zap.NewNop())
	fetcher := &fileFetcher{}
	s := NewService(fetcher, a, tmp, zap.NewNop())

	report, err := s.AnalyzeURL(context.Background(), "  http://videos.test/exam.mp4 ")
	if err != nil {
		t.Fatalf("AnalyzeURL failed: %v", err)
	}
	if len(report.Observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(report.Observations))
	}
	for _, obs := range report.Observations {
		if obs.HeadPosition != types.HeadAway || obs.ScreenshotURL == "" {
			t.Errorf("Unexpected observation %+v", obs)
		}
	}
	if filepath.Base(opener.path) != "source.mp4" {
		t.Errorf("Analyzer opened %s, want the downloaded file", opener.path)
	}
	if len(artifacts.objects) != 2 {
		t.Errorf("Expected 2 uploads, got %d", len(artifacts.objects))
	}
	assertEmptyDir(t, tmp)
}

func TestServiceMissingInput(t *testing.T) {
	fetcher := &fileFetcher{}
	s := NewService(fetcher, nil, t.TempDir(), zap.NewNop())
	for _, in := range []string{"", "   "} {
		if _, err := s.AnalyzeURL(context.Background(), in); !errors.Is(err, types.ErrMissingInput) {
			t.Errorf("AnalyzeURL(%q) = %v, want ErrMissingInput", in, err)
		}
	}
	if fetcher.seen != "" {
		t.Error("No download should be attempted without a URL")
	}
}

func TestServiceDownloadFailure(t *testing.T) {
	tmp := t.TempDir()
	s := NewService(&fileFetcher{err: errors.New("bad response code: 404")}, nil, tmp, zap.NewNop())

	_, err := s.AnalyzeURL(context.Background(), "http://videos.test/missing.mp4")
	var dlErr *types.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Expected DownloadError, got %v", err)
	}
	if dlErr.URL != "http://videos.test/missing.mp4" {
		t.Errorf("DownloadError.URL = %q", dlErr.URL)
	}
	assertEmptyDir(t, tmp)
}

func TestServiceUnreadableVideo(t *testing.T) {
	tmp := t.TempDir()
	opener := &pathOpener{err: &types.UnreadableVideoError{Path: "x", Err: errors.New("invalid data")}}
	a := NewAnalyzer(opener, &scriptedDetector{}, nil, CaptureOptions{}, zap.NewNop())
	s := NewService(&fileFetcher{}, a, tmp, zap.NewNop())

	_, err := s.AnalyzeURL(context.Background(), "http://videos.test/garbage.mp4")
	var unreadable *types.UnreadableVideoError
	if !errors.As(err, &unreadable) {
		t.Fatalf("Expected UnreadableVideoError, got %v", err)
	}
	assertEmptyDir(t, tmp)
}

func TestServiceAnalyzeFile(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(t.TempDir(), "local.mp4")
	os.WriteFile(input, []byte("video"), 0644)

	opener := &pathOpener{src: &fakeSource{n: 30, fps: 30, data: []byte("frame")}}
	det := &scriptedDetector{script: func(int) ([]types.Detection, error) { return []types.Detection{face(0.5)}, nil }}
	a := NewAnalyzer(opener, det, nil, CaptureOptions{}, zap.NewNop())
	s := NewService(nil, a, tmp, zap.NewNop())

	frames := 0
	report, err := s.AnalyzeFile(context.Background(), input, func(video.Frame) { frames++ })
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Observations) != 1 || frames != 30 {
		t.Errorf("Got %d observations over %d frames", len(report.Observations), frames)
	}
	if _, err := os.Stat(input); err != nil {
		t.Error("AnalyzeFile must not delete the caller's file")
	}
	assertEmptyDir(t, tmp)
}
