package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KyleGal/live-translation-api/internal/audio"
	"github.com/KyleGal/live-translation-api/internal/config"
	"github.com/KyleGal/live-translation-api/internal/events"
	"github.com/KyleGal/live-translation-api/internal/metrics"
	"github.com/KyleGal/live-translation-api/internal/segment"
	"github.com/KyleGal/live-translation-api/internal/transcription"
	"github.com/KyleGal/live-translation-api/internal/vad"
)

// frameChannelSize bounds the capture-to-processing queue. A full
// queue blocks the capture goroutine; frames are never dropped.
const frameChannelSize = 64

type pipelineFrame struct {
	frame    audio.Frame
	isSpeech bool
}

// SessionStats is a point-in-time snapshot of session counters
type SessionStats struct {
	ID                  string    `json:"id"`
	StartedAt           time.Time `json:"started_at"`
	FramesProcessed     uint64    `json:"frames_processed"`
	SpeechFrames        uint64    `json:"speech_frames"`
	UtterancesFinalized uint64    `json:"utterances_finalized"`
	UtterancesDiscarded uint64    `json:"utterances_discarded"`
	PartialFlushes      uint64    `json:"partial_flushes"`
}

// Session is one live transcription pipeline over a single audio
// source. Run owns all segmenter state; everything else observes the
// session through the event stream or atomic counters.
type Session struct {
	ID        string
	StartedAt time.Time

	source      audio.FrameSource
	detector    *vad.Detector
	segmenter   *segment.Segmenter
	transcriber *transcription.Client
	stream      *events.Stream
	metrics     *metrics.Metrics
	logger      *slog.Logger

	sampleRate      int
	partialInterval time.Duration

	frames     chan pipelineFrame
	stopCh     chan struct{}
	stopOnce   sync.Once
	captureErr error

	// curWG tracks in-flight partial transcriptions of the active
	// utterance so its final is never emitted before them. Touched only
	// by the processing goroutine.
	curWG       *sync.WaitGroup
	partialSlot chan struct{}
	// finalDone chains final emissions so utterances appear in the
	// order they finished.
	finalDone chan struct{}

	transcriptMu sync.Mutex
	transcript   []string

	framesProcessed     atomic.Uint64
	speechFrames        atomic.Uint64
	utterancesFinalized atomic.Uint64
	utterancesDiscarded atomic.Uint64
	partialFlushes      atomic.Uint64
}

func newSession(id string, source audio.FrameSource, detector *vad.Detector, transcriber *transcription.Client, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Session {
	return &Session{
		ID:        id,
		StartedAt: time.Now(),
		source:    source,
		detector:  detector,
		segmenter: segment.NewSegmenter(segment.Config{
			SilenceTimeout: cfg.Segmenter.GetSilenceTimeout(),
			MinUtterance:   cfg.Segmenter.GetMinUtterance(),
		}),
		transcriber:     transcriber,
		stream:          events.NewStream(frameChannelSize),
		metrics:         m,
		logger:          logger.With("session_id", id),
		sampleRate:      cfg.Audio.SampleRate,
		partialInterval: cfg.Segmenter.GetPartialInterval(),
		frames:          make(chan pipelineFrame, frameChannelSize),
		stopCh:          make(chan struct{}),
		partialSlot:     make(chan struct{}, 1),
	}
}

// Events returns the session's ordered result stream
func (s *Session) Events() <-chan events.Event {
	return s.stream.Events()
}

// Stop requests a graceful stop: capture ends at the next frame
// boundary and any buffered speech is flushed and transcribed.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run drives the pipeline until the source is exhausted, Stop is
// called, or the context is cancelled. It blocks until the event
// stream is closed.
func (s *Session) Run(ctx context.Context) {
	s.metrics.RecordSessionStart()
	defer func() {
		s.metrics.RecordSessionEnd(time.Since(s.StartedAt))
	}()

	s.logger.Info("Session started",
		"sample_rate", s.sampleRate,
		"partial_interval", s.partialInterval)
	s.stream.Status("session started")

	go s.capture(ctx)
	s.process(ctx)

	s.logger.Info("Session finished",
		"frames", s.framesProcessed.Load(),
		"utterances", s.utterancesFinalized.Load())
}

// capture reads frames from the source, classifies them, and feeds
// the processing queue. It never mutates segmenter state.
func (s *Session) capture(ctx context.Context) {
	defer close(s.frames)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			s.captureErr = err
			return
		}

		result, err := s.detector.Classify(frame.Samples)
		if err != nil {
			s.captureErr = err
			return
		}

		s.framesProcessed.Add(1)
		if result.IsSpeech {
			s.speechFrames.Add(1)
		}
		s.metrics.RecordFrame(result.IsSpeech)

		select {
		case s.frames <- pipelineFrame{frame: frame, isSpeech: result.IsSpeech}:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// process is the sole consumer of the frame queue and the only
// goroutine that mutates the segmenter.
func (s *Session) process(ctx context.Context) {
	ticker := time.NewTicker(s.partialInterval)
	defer ticker.Stop()

	var finals sync.WaitGroup

	for {
		select {
		case pf, ok := <-s.frames:
			if !ok {
				s.finish(ctx, &finals)
				return
			}
			s.handleFrame(ctx, pf, &finals)

		case <-ticker.C:
			s.partialFlush(ctx)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, pf pipelineFrame, finals *sync.WaitGroup) {
	wasSpeaking := s.segmenter.State() == segment.StateSpeaking

	utterance, err := s.segmenter.Push(pf.frame, pf.isSpeech)
	if err != nil {
		// Sources produce monotonic sequence numbers, so this indicates
		// a programming error upstream.
		s.logger.Error("Segmenter rejected frame", "error", err)
		return
	}

	if utterance != nil {
		s.finalizeUtterance(ctx, utterance, finals)
		return
	}

	// Push returning nil after a Speaking->Idle transition means a
	// below-minimum utterance was discarded without transcription.
	if wasSpeaking && s.segmenter.State() == segment.StateIdle {
		s.utterancesDiscarded.Add(1)
		s.metrics.RecordUtterance("discarded")
		s.curWG = nil
		s.logger.Debug("Discarded short utterance")
	}
}

// partialFlush snapshots the active utterance and transcribes it off
// the processing goroutine. At most one partial is in flight; ticks
// that land while one is pending are skipped.
func (s *Session) partialFlush(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	samples, ok := s.segmenter.Snapshot()
	if !ok || len(samples) == 0 {
		return
	}

	select {
	case s.partialSlot <- struct{}{}:
	default:
		return
	}

	if s.curWG == nil {
		s.curWG = &sync.WaitGroup{}
	}
	wg := s.curWG
	wg.Add(1)

	s.partialFlushes.Add(1)
	s.metrics.RecordPartialFlush()

	go func() {
		defer func() {
			wg.Done()
			<-s.partialSlot
		}()

		text, err := s.transcribe(ctx, samples)
		if err != nil || text == "" {
			return
		}
		s.stream.Transcription(text, false)
	}()
}

// finalizeUtterance transcribes a completed utterance off the
// processing goroutine. The final transcription waits for every
// partial of the same utterance, and finals are emitted in utterance
// order.
func (s *Session) finalizeUtterance(ctx context.Context, u *segment.Utterance, finals *sync.WaitGroup) {
	partials := s.curWG
	s.curWG = nil

	prev := s.finalDone
	done := make(chan struct{})
	s.finalDone = done

	s.utterancesFinalized.Add(1)
	s.metrics.RecordUtterance("finalized")
	s.logger.Debug("Utterance finalized",
		"utterance_id", u.ID,
		"duration", u.Duration,
		"speech_duration", u.SpeechDuration)

	finals.Add(1)
	go func() {
		defer close(done)
		defer finals.Done()

		if partials != nil {
			partials.Wait()
		}

		text, err := s.transcribe(ctx, u.Samples())

		if prev != nil {
			<-prev
		}
		if err != nil || text == "" {
			return
		}
		s.stream.Transcription(text, true)

		s.transcriptMu.Lock()
		s.transcript = append(s.transcript, text)
		s.transcriptMu.Unlock()
	}()
}

// transcribe runs one engine round trip. Recoverable failures are
// reported on the stream and swallowed; the session keeps running.
func (s *Session) transcribe(ctx context.Context, samples []int16) (string, error) {
	start := time.Now()
	result, err := s.transcriber.Transcribe(ctx, audio.SamplesToBytes(samples), s.sampleRate)
	s.metrics.RecordTranscription(time.Since(start), err)

	if err != nil {
		if errors.Is(err, transcription.ErrAudioTooShort) || ctx.Err() != nil {
			return "", err
		}
		s.stream.Error(err.Error())
		return "", err
	}
	return result.Text, nil
}

// finish flushes buffered speech, waits for outstanding finals, and
// terminates the stream.
func (s *Session) finish(ctx context.Context, finals *sync.WaitGroup) {
	if u := s.segmenter.Flush(); u != nil {
		s.finalizeUtterance(ctx, u, finals)
	}
	finals.Wait()

	if s.captureErr != nil {
		s.logger.Error("Capture failed", "error", s.captureErr)
		s.stream.Fatal(s.captureErr.Error())
		return
	}

	s.transcriptMu.Lock()
	full := strings.Join(s.transcript, " ")
	s.transcriptMu.Unlock()

	s.stream.Final(full)
	s.stream.Close()
}

// GetStats returns current session counters
func (s *Session) GetStats() SessionStats {
	return SessionStats{
		ID:                  s.ID,
		StartedAt:           s.StartedAt,
		FramesProcessed:     s.framesProcessed.Load(),
		SpeechFrames:        s.speechFrames.Load(),
		UtterancesFinalized: s.utterancesFinalized.Load(),
		UtterancesDiscarded: s.utterancesDiscarded.Load(),
		PartialFlushes:      s.partialFlushes.Load(),
	}
}
