package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusClientClosedRequest is the non-standard code recorded when the caller goes away.
const statusClientClosedRequest = 499

const (
	msgMissingInput   = "No video URL provided"
	msgDownloadFailed = "Failed to download video from the URL provided"
	msgUnreadable     = "Unable to read video"
	msgAnalysisFailed = "Analysis failed"
)

// AnalyzeRequest is the only accepted input shape.
type AnalyzeRequest struct {
	VideoURL string `json:"video_url" form:"video_url"`
}

// Analyze handles GET/POST /analyze. The query parameter wins over the body.
func (s *Server) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	req.VideoURL = c.Query("video_url")
	if strings.TrimSpace(req.VideoURL) == "" && c.Request.ContentLength != 0 && c.Request.Body != nil {
		// A malformed body is treated the same as an absent one.
		_ = c.ShouldBindJSON(&req)
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingInput})
		return
	}

	report, err := s.analyzer.AnalyzeURL(c.Request.Context(), req.VideoURL)
	if err != nil {
		s.writeError(c, req.VideoURL, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) writeError(c *gin.Context, videoURL string, err error) {
	if c.Request.Context().Err() != nil {
		s.logger.Info("analysis cancelled by client", zap.String("video_url", videoURL))
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	var (
		dlErr  *types.DownloadError
		vidErr *types.UnreadableVideoError
	)
	switch {
	case errors.Is(err, types.ErrMissingInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingInput})
	case errors.As(err, &dlErr):
		s.logger.Warn("download failed", zap.String("video_url", videoURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": msgDownloadFailed})
	case errors.As(err, &vidErr):
		s.logger.Warn("unreadable video", zap.String("video_url", videoURL), zap.Error(err), zap.String("decoder_logs", vidErr.Logs))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msgUnreadable})
	default:
		s.logger.Error("analysis failed", zap.String("video_url", videoURL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgAnalysisFailed})
	}
}

// GetArtifact serves a stored screenshot.
func (s *Server) GetArtifact(c *gin.Context) {
	if s.artifacts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
		return
	}
	name := strings.TrimPrefix(c.Param("name"), "/")
	art, err := s.artifacts.Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidName) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
			return
		}
		s.logger.Error("artifact lookup failed", zap.String("name", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load artifact"})
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

// Healthz reports liveness.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
