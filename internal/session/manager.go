package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KyleGal/live-translation-api/internal/audio"
	"github.com/KyleGal/live-translation-api/internal/config"
	"github.com/KyleGal/live-translation-api/internal/diarize"
	"github.com/KyleGal/live-translation-api/internal/metrics"
	"github.com/KyleGal/live-translation-api/internal/transcription"
	"github.com/KyleGal/live-translation-api/internal/vad"
)

// Manager owns all live sessions and the shared engine clients
type Manager struct {
	config      *config.Config
	transcriber *transcription.Client
	diarizer    *diarize.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	mgr := &Manager{
		config: cfg,
		transcriber: transcription.NewClient(
			cfg.Transcription.Endpoint,
			cfg.Transcription.Language,
			cfg.Transcription.GetTimeoutDuration(),
			cfg.Transcription.MaxConcurrent,
			logger,
		),
		diarizer: diarize.NewClient(
			cfg.Diarization.Endpoint,
			cfg.Diarization.GetTimeoutDuration(),
			cfg.Diarization.MinSpeakers,
			cfg.Diarization.MaxSpeakers,
			logger,
		),
		metrics:     m,
		logger:      logger,
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	go mgr.cleanupRoutine()
	return mgr
}

// StartSession creates a session over the given source and runs its
// pipeline in the background. The caller consumes results through
// Session.Events.
func (m *Manager) StartSession(ctx context.Context, source audio.FrameSource) (*Session, error) {
	detector, err := vad.NewDetector(m.config.VAD.Aggressiveness, m.config.VAD.EnergyFloor)
	if err != nil {
		return nil, fmt.Errorf("failed to create VAD detector: %w", err)
	}

	id := uuid.NewString()
	sess := newSession(id, source, detector, m.transcriber, m.config, m.metrics, m.logger)

	m.mu.Lock()
	if len(m.sessions) >= m.config.HTTP.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("session limit reached (%d)", m.config.HTTP.MaxSessions)
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	go func() {
		sess.Run(ctx)

		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}()

	return sess, nil
}

// GetSession returns a live session by ID
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// ListSessions returns stats for every live session
func (m *Manager) ListSessions() []SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionStats, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.GetStats())
	}
	return out
}

// SessionCount returns the number of live sessions
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// AttributeRecording transcribes a complete WAV recording, diarizes
// it, and aligns transcript chunks to speakers. A diarization failure
// degrades to unattributed turns rather than failing the request.
func (m *Manager) AttributeRecording(ctx context.Context, wav []byte) ([]diarize.AttributedTurn, int, error) {
	samples, sampleRate, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid WAV recording: %w", err)
	}

	result, err := m.transcriber.Transcribe(ctx, audio.SamplesToBytes(samples), sampleRate)
	if err != nil {
		return nil, 0, err
	}

	chunks := make([]diarize.TranscriptChunk, 0, len(result.Chunks))
	for _, c := range result.Chunks {
		chunks = append(chunks, diarize.TranscriptChunk{Text: c.Text, Start: c.Start, End: c.End})
	}

	diarization, err := m.diarizer.Diarize(ctx, wav)
	m.metrics.RecordDiarization(err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		m.logger.Warn("Diarization failed, returning unattributed turns", "error", err)
		return diarize.Align(chunks, nil), 0, nil
	}

	turns := diarize.Align(chunks, diarization.Segments)
	m.metrics.RecordAlignment(len(turns))
	return turns, diarization.NumSpeakers, nil
}

// TranscriberStats exposes shared engine client counters
func (m *Manager) TranscriberStats() transcription.ClientStats {
	return m.transcriber.GetStats()
}

// Stop gracefully stops every live session and the cleanup routine
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCleanup) })

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}

// cleanupRoutine force-stops sessions that exceed the configured
// lifetime, protecting the service from abandoned streams.
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapStale()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) reapStale() {
	timeout := m.config.HTTP.GetSessionTimeout()

	m.mu.RLock()
	var stale []*Session
	for _, sess := range m.sessions {
		if time.Since(sess.StartedAt) > timeout {
			stale = append(stale, sess)
		}
	}
	m.mu.RUnlock()

	for _, sess := range stale {
		m.logger.Warn("Stopping stale session",
			"session_id", sess.ID,
			"age", time.Since(sess.StartedAt))
		sess.Stop()
	}
}
