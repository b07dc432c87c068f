package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdhe/frame-insight/pkg/analysis"
	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/frame"
	"github.com/abdhe/frame-insight/pkg/metrics"
)

func (s *Server) handleUpload(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large"})
			return
		}
		s.logger.Error("read upload body", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read image"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image data"})
		return
	}

	f := s.frames.Set(data)
	metrics.FramesUploadedTotal.Inc()
	metrics.FrameBytes.Set(float64(len(data)))
	s.logger.Debug("frame stored", "frame_id", f.ID, "seq", f.Seq, "bytes", len(data))

	c.String(http.StatusOK, "Image received")
}

// handleVideoFeed streams every new frame as a multipart part until the
// client disconnects.
func (s *Server) handleVideoFeed(c *gin.Context) {
	ctx := c.Request.Context()

	metrics.StreamClients.WithLabelValues("multipart").Inc()
	defer metrics.StreamClients.WithLabelValues("multipart").Dec()

	c.Header("Content-Type", frame.StreamContentType)
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	chunks := s.frames.Stream(ctx, s.opts.Stream)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(chunk); err != nil {
				s.logger.Debug("video feed client gone", "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

func (s *Server) handleSnapshot(c *gin.Context) {
	f, ok := s.frames.Get()
	if !ok {
		writeError(c, apierr.ErrNoFrame)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, frame.ImageContentType, f.Data)
}

type analyzeResponse struct {
	analysis.Record
	FrameID         string `json:"frame_id"`
	Tier            int    `json:"tier"`
	Degraded        bool   `json:"degraded"`
	GeneratedText   string `json:"generated_text,omitempty"`
	GenerationError string `json:"generation_error,omitempty"`
}

// handleAnalyze runs the fallback chain on the current frame and forwards the
// record to text generation. A generation failure does not fail the request.
func (s *Server) handleAnalyze(c *gin.Context) {
	f, ok := s.frames.Get()
	if !ok {
		writeError(c, apierr.ErrNoFrame)
		return
	}

	ctx := c.Request.Context()
	out, err := s.analyzer.Analyze(ctx, f.Data)
	if err != nil {
		s.logger.Error("analysis failed", "frame_id", f.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": apierr.Message(err)})
		return
	}

	resp := analyzeResponse{
		Record:   out.Record,
		FrameID:  f.ID,
		Tier:     int(out.Tier),
		Degraded: out.Degraded(),
	}

	if s.generator != nil {
		res, err := s.generator.Generate(ctx, out.Record)
		if err != nil {
			s.logger.Warn("text generation failed", "frame_id", f.ID, "error", err)
			resp.GenerationError = apierr.Message(err)
		} else {
			resp.GeneratedText = res.Text
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerateText(c *gin.Context) {
	if s.generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Text generation is disabled"})
		return
	}

	// JSON null decodes to the zero record and is rejected with it.
	var rec analysis.Record
	if err := c.ShouldBindJSON(&rec); err != nil || rec.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No analysis data provided"})
		return
	}

	res, err := s.generator.Generate(c.Request.Context(), rec.Complete())
	if err != nil {
		s.logger.Error("text generation failed", "error", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"generated_text": res.Text})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	uptime := time.Since(s.started)
	body := gin.H{
		"status":          "ok",
		"version":         s.opts.Version,
		"uptime":          uptime.String(),
		"uptime_seconds":  int64(uptime.Seconds()),
		"frame_available": false,
		"text_generation": s.generator != nil,
	}

	if f, ok := s.frames.Get(); ok {
		body["frame_available"] = true
		body["frame_id"] = f.ID
		body["sequence"] = f.Seq
		body["frame_bytes"] = len(f.Data)
		body["last_frame_age_seconds"] = time.Since(f.ReceivedAt).Seconds()
	}

	c.JSON(http.StatusOK, body)
}

func writeError(c *gin.Context, err error) {
	c.JSON(apierr.HTTPStatus(err), gin.H{"error": apierr.Message(err)})
}
