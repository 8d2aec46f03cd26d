package worker

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils" // Using the SafeCommand wrapper
	"go.uber.org/multierr"
)

// Config describes how a Python detection worker is launched.
type Config struct {
	Python         string
	Script         string
	MinConfidence  float64
	ModelSelection int // 0 = short range, 1 = full range
	ReadTimeout    time.Duration
}

// PythonWorker is one long-lived face detection process.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	readTimeout time.Duration

	mu     sync.Mutex
	broken bool
}

// NewPythonWorker starts the worker script. ctx bounds the process lifetime,
// so it should outlive individual requests.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script,
		"--min-confidence", strconv.FormatFloat(cfg.MinConfidence, 'f', -1, 64),
		"--model-selection", strconv.Itoa(cfg.ModelSelection),
	)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one frame and returns the raw response body.
// Protocol: [uint32 BE length][data] in both directions.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Detect runs face detection on one JPEG frame. Transport failures mark the
// worker broken; a logic error reported by the script does not.
func (w *PythonWorker) Detect(ctx context.Context, frame []byte) ([]types.Detection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken {
		return nil, fmt.Errorf("worker %d is not running", w.ID)
	}

	// A stuck or cancelled request kills the process, which unblocks the read below.
	stop := context.AfterFunc(ctx, w.kill)
	var timer *time.Timer
	if w.readTimeout > 0 {
		timer = time.AfterFunc(w.readTimeout, w.kill)
	}

	resp, err := w.Communicate(frame)

	// A kill that fired after the response arrived still took the process down.
	if !stop() {
		w.broken = true
	}
	if timer != nil && !timer.Stop() {
		w.broken = true
	}

	if err != nil {
		w.broken = true
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("worker %d: %w", w.ID, err)
	}
	return decodeResponse(resp)
}

// Healthy reports whether the worker can still serve requests.
func (w *PythonWorker) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.broken
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
}

// Logs returns whatever the script wrote to stderr.
func (w *PythonWorker) Logs() string {
	return w.Cmd.Logs()
}

// Close shuts the worker down: closing stdin makes the script exit its read loop.
func (w *PythonWorker) Close() error {
	err := multierr.Combine(w.Stdin.Close(), w.DataPipe.Close())
	if w.Cmd != nil {
		if werr := w.Cmd.Wait(); werr != nil {
			var exitErr *exec.ExitError
			if !errors.As(werr, &exitErr) {
				err = multierr.Append(err, werr)
			}
		}
	}
	return err
}

// decodeResponse turns a worker JSON body into detections.
func decodeResponse(body []byte) ([]types.Detection, error) {
	var res struct {
		types.DetectionResult
		types.ErrorResult
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("malformed worker response: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("python worker error: %s", res.Error)
	}
	return res.Detections, nil
}
