package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/andresmejia3/proctor/internal/video"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// analyzeOptions holds the flags of the analyze command
type analyzeOptions struct {
	URL       string
	InputPath string
	Capture   bool
	Engines   int
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one video and print the report as JSON",
	Example: `  proctor analyze --url https://example.com/exam.mp4
  proctor analyze -i recording.mp4 --capture`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateAnalyzeFlags(&analyzeOpts); err != nil {
			return err
		}
		if err := runAnalyze(cmd.Context(), analyzeOpts); err != nil {
			return errAlreadyReported
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOpts.URL, "url", "u", "", "HTTP(S) URL of the video to download")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.InputPath, "input", "i", "", "Path to a local video")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Capture, "capture", false, "Upload screenshots of frames where the head is not forward")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.Engines, "engines", "e", 0, "Number of detector engines (overrides detector.engines)")
	analyzeCmd.MarkFlagsMutuallyExclusive("url", "input")
	rootCmd.AddCommand(analyzeCmd)
}

func validateAnalyzeFlags(opts *analyzeOptions) error {
	if opts.URL == "" && opts.InputPath == "" {
		return errors.New("one of --url or --input is required")
	}
	if opts.Engines < 0 {
		return fmt.Errorf("--engines must be >= 0, got %d", opts.Engines)
	}
	return nil
}

// runAnalyze performs a single run and writes the report to stdout. Progress
// goes to stderr so the output can be piped. Failures are reported before returning.
func runAnalyze(ctx context.Context, opts analyzeOptions) error {
	if opts.Engines > 0 {
		cfg.Detector.Engines = opts.Engines
	}
	capture := opts.Capture || cfg.Capture.Enabled

	det, err := newDetector(context.Background(), cfg, logger)
	if err != nil {
		utils.ShowError("Detector startup failed", err, "")
		return err
	}
	defer det.Close()

	var artifacts store.Artifacts
	if capture {
		artifacts, err = openArtifacts(ctx, cfg)
		if err != nil {
			utils.ShowError("Artifact store unavailable", err, "")
			return err
		}
		defer artifacts.Close(context.Background())
	}

	svc := newService(cfg, det, artifacts, capture, logger)

	var report *types.Report
	if opts.InputPath != "" {
		bar := newProgressBar(ctx, opts.InputPath)
		report, err = svc.AnalyzeFile(ctx, opts.InputPath, func(video.Frame) { bar.Add(1) })
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	} else {
		fmt.Fprintf(os.Stderr, "📥 Downloading %s\n", opts.URL)
		report, err = svc.AnalyzeURL(ctx, opts.URL)
	}
	if err != nil {
		reportFailure(err)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to write report", zap.Error(err))
		return err
	}
	fmt.Fprintf(os.Stderr, "🏁 Analysis complete. %d observation(s).\n", len(report.Observations))
	return nil
}

func newProgressBar(ctx context.Context, path string) *progressbar.ProgressBar {
	total := utils.GetTotalFrames(ctx, video.NewFFmpegOpener().FFprobe, path)
	if total <= 0 {
		// Fallback to a spinner if ffprobe cannot count frames
		total = -1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Proctor Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
}

func reportFailure(err error) {
	var (
		dlErr  *types.DownloadError
		vidErr *types.UnreadableVideoError
	)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "\n🛑 Analysis cancelled.")
	case errors.As(err, &dlErr):
		utils.ShowError("Failed to download video", err, "")
	case errors.As(err, &vidErr):
		utils.ShowError("Unable to read video", err, vidErr.Logs)
	default:
		utils.ShowError("Analysis failed", err, "")
	}
}
