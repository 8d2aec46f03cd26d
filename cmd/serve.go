package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/proctor/internal/server"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// runServe builds the long-lived collaborators, serves until ctx ends and
// tears everything down in reverse order.
func runServe(ctx context.Context) error {
	// Worker processes must outlive the signal context so in-flight requests can drain.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d %s detector engine(s)...\n", cfg.Detector.Engines, cfg.Detector.Kind)
	det, err := newDetector(workerCtx, cfg, logger)
	if err != nil {
		utils.ShowError("Detector startup failed", err, "")
		return errAlreadyReported
	}
	defer func() {
		if err := det.Close(); err != nil {
			logger.Warn("detector shutdown", zap.Error(err))
		}
	}()

	artifacts, err := openArtifacts(ctx, cfg)
	if err != nil {
		utils.ShowError("Artifact store unavailable", err, "")
		return errAlreadyReported
	}
	// Use Background here because ctx is already cancelled on shutdown.
	defer artifacts.Close(context.Background())

	svc := newService(cfg, det, artifacts, cfg.Capture.Enabled, logger)
	srv := server.New(svc, artifacts, logger)

	fmt.Fprintf(os.Stderr, "🚀 Proctor listening on %s\n", cfg.Server.Addr)
	if err := srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, "👋 Server stopped.")
	return nil
}
