// Package server exposes the HTTP API: live SSE transcription
// streams, recording attribution, and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KyleGal/live-translation-api/internal/audio"
	"github.com/KyleGal/live-translation-api/internal/config"
	"github.com/KyleGal/live-translation-api/internal/events"
	"github.com/KyleGal/live-translation-api/internal/metrics"
	"github.com/KyleGal/live-translation-api/internal/session"
)

// maxRecordingBytes caps uploaded recordings at 100MB
const maxRecordingBytes = 100 << 20

// HTTPServer serves the transcription API
type HTTPServer struct {
	server  *http.Server
	manager *session.Manager
	config  *config.Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHTTPServer creates the API server with all routes registered
func NewHTTPServer(cfg *config.Config, manager *session.Manager, m *metrics.Metrics, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		manager: manager,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/stream", s.withMetrics("/api/v1/stream", s.handleStream))
	mux.HandleFunc("POST /api/v1/recordings", s.withMetrics("/api/v1/recordings", s.handleRecordings))
	mux.HandleFunc("GET /api/v1/sessions", s.withMetrics("/api/v1/sessions", s.handleSessions))
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.withMetrics("/api/v1/sessions/id", s.handleSession))
	mux.HandleFunc("GET /health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("GET /stats", s.withMetrics("/stats", s.handleStats))
	mux.HandleFunc("GET /config", s.withMetrics("/config", s.handleConfig))
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Start begins serving. It blocks until the server stops.
func (s *HTTPServer) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleStream runs a live transcription session over the request
// body (raw 16-bit little-endian mono PCM) and streams events back as
// SSE until the body is exhausted or the client disconnects.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	sampleRate := s.config.Audio.SampleRate
	if h := r.Header.Get("X-Sample-Rate"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || (parsed != 8000 && parsed != 16000) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported sample rate %q", h))
			return
		}
		sampleRate = parsed
	}

	source, err := audio.NewReaderSource(r.Body, sampleRate, s.config.Audio.GetFrameDuration())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.manager.StartSession(r.Context(), source)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sess.ID)
	w.WriteHeader(http.StatusOK)

	for event := range sess.Events() {
		if err := events.WriteSSE(w, event); err != nil {
			s.logger.Debug("Client disconnected", "session_id", sess.ID, "error", err)
			sess.Stop()
			for range sess.Events() {
				// drain so the pipeline can finish
			}
			return
		}
	}
}

// handleRecordings transcribes, diarizes, and speaker-attributes a
// complete WAV recording.
func (s *HTTPServer) handleRecordings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecordingBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxRecordingBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "recording exceeds size limit")
		return
	}
	if err := audio.ValidateWAV(body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turns, numSpeakers, err := s.manager.AttributeRecording(r.Context(), body)
	if err != nil {
		s.logger.Error("Recording attribution failed", "error", err, "bytes", len(body))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"turns":       turns,
			"numSpeakers": numSpeakers,
		},
	})
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"sessions": s.manager.ListSessions(),
			"count":    s.manager.SessionCount(),
		},
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.GetSession(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    sess.GetStats(),
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"active_sessions": s.manager.SessionCount(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"sessions":      s.manager.ListSessions(),
			"transcription": s.manager.TranscriberStats(),
		},
	})
}

func (s *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"sample_rate":       s.config.Audio.SampleRate,
			"frame_duration_ms": s.config.Audio.FrameDuration,
			"silence_timeout":   s.config.Segmenter.SilenceTimeout,
			"min_utterance":     s.config.Segmenter.MinUtterance,
			"partial_interval":  s.config.Segmenter.PartialInterval,
			"language":          s.config.Transcription.Language,
		},
	})
}

// withMetrics records request counts and latency per route
func (s *HTTPServer) withMetrics(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)
		s.metrics.RecordHTTPRequest(path, strconv.Itoa(rw.statusCode), time.Since(start))
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]any{
		"success": false,
		"error":   message,
	})
}

// responseWriter captures the status code for metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE writes through the metrics wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
