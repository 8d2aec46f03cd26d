// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Analyzer runs one analysis for a video URL.
type Analyzer interface {
	AnalyzeURL(ctx context.Context, videoURL string) (*types.Report, error)
}

// Server wires the handlers onto a gin engine.
type Server struct {
	analyzer  Analyzer
	artifacts store.Artifacts
	logger    *zap.Logger
	engine    *gin.Engine
}

// New builds the router. artifacts may be nil, in which case /artifacts answers 404.
func New(analyzer Analyzer, artifacts store.Artifacts, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		analyzer:  analyzer,
		artifacts: artifacts,
		logger:    logger,
		engine:    gin.New(),
	}
	s.engine.Use(requestLogger(logger), gin.Recovery())

	s.engine.GET("/healthz", s.Healthz)
	for _, path := range []string{"/analyze", "/api/http_trigger"} {
		s.engine.GET(path, s.Analyze)
		s.engine.POST(path, s.Analyze)
	}
	s.engine.GET("/artifacts/*name", s.GetArtifact)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
