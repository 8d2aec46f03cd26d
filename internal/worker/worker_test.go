package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/andresmejia3/proctor/internal/types"
	"go.uber.org/zap"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func fakeResponse(body string) *MockCloser {
	pipe := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(pipe, binary.BigEndian, uint32(len(body)))
	pipe.WriteString(body)
	return pipe
}

func TestDetect(t *testing.T) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := fakeResponse(`{"detections":[{"xmin":0.1,"ymin":0.2,"width":0.3,"height":0.4,"score":0.9}]}`)

	// Cmd is nil because we aren't testing process management, just the protocol
	w := &PythonWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}

	inputFrame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	dets, err := w.Detect(context.Background(), inputFrame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// Verify Go sent the correct data TO Python
	sentData := stdinMock.Bytes()
	if len(sentData) != 4+len(inputFrame) {
		t.Errorf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sentData))
	}
	if binary.BigEndian.Uint32(sentData[:4]) != uint32(len(inputFrame)) {
		t.Errorf("Length header mismatch: %X", sentData[:4])
	}

	if len(dets) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(dets))
	}
	if math.Abs(dets[0].XMin-0.1) > 1e-9 || math.Abs(dets[0].Score-0.9) > 1e-9 {
		t.Errorf("Unexpected detection %+v", dets[0])
	}
	if !w.Healthy() {
		t.Error("Worker should stay healthy after a good response")
	}
}

func TestDetect_NoFaces(t *testing.T) {
	w := &PythonWorker{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: fakeResponse(`{"detections":[]}`),
	}
	dets, err := w.Detect(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("Expected no detections, got %d", len(dets))
	}
}

func TestDetect_CancelledAfterResponse(t *testing.T) {
	w := &PythonWorker{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: fakeResponse(`{"detections":[]}`),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The response is already buffered, so Communicate succeeds even though the
	// cancellation kill has been scheduled.
	if _, err := w.Detect(ctx, []byte("frame")); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if w.Healthy() {
		t.Error("Worker must not be reused after a kill was triggered")
	}
	if _, err := w.Detect(context.Background(), []byte("frame")); err == nil {
		t.Error("Expected an error from a dead worker")
	}
}

func TestDetect_Error(t *testing.T) {
	errMsg := "Python Exception: Import Error"
	w := &PythonWorker{
		ID:       1,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: fakeResponse(`{"error":"` + errMsg + `"}`),
	}

	_, err := w.Detect(context.Background(), []byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
	if !w.Healthy() {
		t.Error("A logic error must not mark the worker broken")
	}
}

func TestDetect_BrokenPipe(t *testing.T) {
	w := &PythonWorker{
		ID:       2,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)}, // nothing to read: worker died
	}

	_, err := w.Detect(context.Background(), []byte("frame"))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Expected EOF, got %v", err)
	}
	if w.Healthy() {
		t.Error("Worker should be marked broken after a transport failure")
	}
	if _, err := w.Detect(context.Background(), []byte("frame")); err == nil {
		t.Error("Broken worker should refuse further frames")
	}
}

// fakeEngine counts calls and can be told to break.
type fakeEngine struct {
	mu      sync.Mutex
	id      int
	healthy bool
	calls   int
	closed  bool
}

func (f *fakeEngine) Detect(ctx context.Context, frame []byte) ([]types.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []types.Detection{{XMin: float64(f.id)}}, nil
}

func (f *fakeEngine) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestPoolRestartsBrokenEngine(t *testing.T) {
	var started []*fakeEngine
	factory := func(ctx context.Context, id int) (Engine, error) {
		e := &fakeEngine{id: id, healthy: true}
		started = append(started, e)
		return e, nil
	}

	p, err := NewPool(context.Background(), 1, factory, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	if _, err := p.Detect(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	started[0].healthy = false

	if _, err := p.Detect(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(started) != 2 {
		t.Fatalf("Expected the broken engine to be replaced, %d engines started", len(started))
	}
	if !started[0].closed {
		t.Error("Broken engine was not closed")
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !started[1].closed {
		t.Error("Pool.Close did not close the live engine")
	}
	if _, err := p.Detect(context.Background(), nil); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed after Close, got %v", err)
	}
}

func TestPoolStartupFailure(t *testing.T) {
	var started []*fakeEngine
	factory := func(ctx context.Context, id int) (Engine, error) {
		if id == 1 {
			return nil, errors.New("no python")
		}
		e := &fakeEngine{id: id, healthy: true}
		started = append(started, e)
		return e, nil
	}

	if _, err := NewPool(context.Background(), 3, factory, zap.NewNop()); err == nil {
		t.Fatal("Expected startup error")
	}
	if len(started) != 1 || !started[0].closed {
		t.Error("Engines started before the failure should be closed")
	}
}

func TestPoolConcurrentCheckout(t *testing.T) {
	factory := func(ctx context.Context, id int) (Engine, error) {
		return &fakeEngine{id: id, healthy: true}, nil
	}
	p, err := NewPool(context.Background(), 2, factory, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Detect(context.Background(), nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}

func TestHTTPDetector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/jpeg" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			w.Write([]byte(`{"error":"want jpeg"}`))
			return
		}
		if r.URL.Query().Get("min_confidence") != "0.5" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) == "explode" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"model crashed"}`))
			return
		}
		w.Write([]byte(`{"detections":[{"xmin":0.8,"ymin":0.1,"width":0.1,"height":0.1,"score":0.7}]}`))
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, 0.5, 0)
	defer d.Close()

	dets, err := d.Detect(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 1 || dets[0].XMin != 0.8 {
		t.Errorf("Unexpected detections %+v", dets)
	}

	if _, err := d.Detect(context.Background(), []byte("explode")); err == nil {
		t.Error("Expected error for 500 response")
	}
}
