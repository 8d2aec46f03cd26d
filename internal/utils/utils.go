package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg / Python logs)
// so crash information survives the child process.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Logs returns the captured stderr, trimmed.
func (s *SafeCommand) Logs() string {
	if s == nil || s.Stderr == nil {
		return ""
	}
	return strings.TrimSpace(s.Stderr.String())
}

// ShowError prints a formatted error box and dumps captured child logs if any are given.
func ShowError(context string, err error, logs string) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 PROCTOR ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	if logs != "" {
		fmt.Fprintf(os.Stderr, "\nCHILD PROCESS LOGS:\n%s\n", logs)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Video Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// DefaultFrameRate is used whenever a container reports no usable rate.
const DefaultFrameRate = 30.0

type ffprobeOutput struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// GetVideoFPS asks ffprobe for the frame rate of the first video stream.
// An error means ffprobe could not open the file at all. A stream without a
// usable rate yields 0, which callers normalize.
func GetVideoFPS(ctx context.Context, ffprobe, path string) (float64, error) {
	cmd := NewSafeCommand(ctx, ffprobe, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		if logs := cmd.Logs(); logs != "" {
			return 0, fmt.Errorf("ffprobe: %w: %s", err, logs)
		}
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, fmt.Errorf("no video stream in %s", path)
	}

	if fps := ParseFrameRate(res.Streams[0].AvgFrameRate); fps > 0 {
		return fps, nil
	}
	return ParseFrameRate(res.Streams[0].RFrameRate), nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001", "25/1" or "29.97".
// Anything unparsable or non-positive returns 0.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		if r := n / d; r > 0 {
			return r
		}
		return 0
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 {
		return 0
	}
	return r
}

// NormalizeFrameRate maps a non-positive (or NaN) rate to DefaultFrameRate.
func NormalizeFrameRate(fps float64) float64 {
	if !(fps > 0) {
		return DefaultFrameRate
	}
	return fps
}

// GetTotalFrames reads the container frame count for the progress bar.
// It returns 0 if the count is unavailable, allowing callers to fall back to a spinner.
func GetTotalFrames(ctx context.Context, ffprobe, path string) int {
	if _, err := exec.LookPath(ffprobe); err != nil {
		return 0
	}
	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=nb_frames", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	var res ffprobeOutput
	if json.Unmarshal(out, &res) != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbFrames)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			// Truncated trailing frame
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegCmd creates a decoder pipe that emits every frame as MJPEG on Stdout.
// -vsync 0 keeps ffmpeg from duplicating or dropping frames, so frame indexes map to stream time.
func NewFFmpegCmd(ctx context.Context, ffmpeg, inputPath string) *SafeCommand {
	return NewSafeCommand(ctx, ffmpeg, "-hide_banner", "-loglevel", "error", "-i", inputPath,
		"-vsync", "0", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}
