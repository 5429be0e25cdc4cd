package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KyleGal/live-translation-api/internal/audio"
	"github.com/KyleGal/live-translation-api/internal/config"
	"github.com/KyleGal/live-translation-api/internal/events"
	"github.com/KyleGal/live-translation-api/internal/metrics"
)

var testMetrics = metrics.New()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(engineURL string) *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Port:           8080,
			MaxSessions:    4,
			SessionTimeout: 60,
		},
		Audio: config.AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			FrameDuration: 30,
		},
		VAD: config.VADConfig{
			Aggressiveness: 2,
			EnergyFloor:    120,
		},
		Segmenter: config.SegmenterConfig{
			SilenceTimeout:  0.3,
			MinUtterance:    0.2,
			PartialInterval: 0.04,
		},
		Transcription: config.TranscriptionConfig{
			Endpoint:      engineURL,
			Language:      "en",
			Timeout:       5,
			MaxConcurrent: 4,
		},
		Diarization: config.DiarizationConfig{
			Endpoint: engineURL,
			Timeout:  5,
		},
	}
}

// stubEngine is a minimal transcription engine that always succeeds
func stubEngine(calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.Write([]byte(`{"success": true, "data": {"transcription": "hello world", "timestamps": []}}`))
	}))
}

// timedSource emits prepared frames at a fixed cadence so partial
// flush ticks interleave with capture.
type timedSource struct {
	frames []audio.Frame
	delay  time.Duration
	next   int
}

func (s *timedSource) Next(ctx context.Context) (audio.Frame, error) {
	if s.next >= len(s.frames) {
		return audio.Frame{}, io.EOF
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

// failingSource fails after a few frames to exercise fatal handling
type failingSource struct {
	remaining int
	seq       uint64
}

func (s *failingSource) Next(ctx context.Context) (audio.Frame, error) {
	if s.remaining <= 0 {
		return audio.Frame{}, errors.New("microphone unplugged")
	}
	s.remaining--
	s.seq++
	return pcmFrame(s.seq, 8000), nil
}

// pcmFrame builds one 30ms frame at 16kHz with the given amplitude
func pcmFrame(seq uint64, amplitude int16) audio.Frame {
	samples := make([]int16, 480)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples, Seq: seq, Duration: 30 * time.Millisecond}
}

func buildFrames(speechFrames, silenceFrames int) []audio.Frame {
	var out []audio.Frame
	seq := uint64(0)
	for i := 0; i < speechFrames; i++ {
		seq++
		out = append(out, pcmFrame(seq, 8000))
	}
	for i := 0; i < silenceFrames; i++ {
		seq++
		out = append(out, pcmFrame(seq, 0))
	}
	return out
}

func runSession(t *testing.T, cfg *config.Config, source audio.FrameSource) []events.Event {
	t.Helper()

	mgr := NewManager(cfg, testMetrics, testLogger())
	defer mgr.Stop()

	sess, err := mgr.StartSession(context.Background(), source)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	var got []events.Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-sess.Events():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-deadline:
			t.Fatalf("session did not finish; events so far: %+v", got)
		}
	}
}

func TestSessionFinalNeverPrecedesPartials(t *testing.T) {
	engine := stubEngine(nil)
	defer engine.Close()

	// 17 speech frames then enough silence to finalize
	source := &timedSource{frames: buildFrames(17, 15), delay: 10 * time.Millisecond}
	got := runSession(t, testConfig(engine.URL), source)

	var partials, finals int
	lastPartial, firstFinal := -1, -1
	for i, e := range got {
		if e.Type != events.TypeTranscription {
			continue
		}
		if e.IsFinal {
			finals++
			if firstFinal == -1 {
				firstFinal = i
			}
		} else {
			partials++
			lastPartial = i
		}
	}

	if finals != 1 {
		t.Fatalf("expected exactly 1 final transcription, got %d (events: %+v)", finals, got)
	}
	if partials == 0 {
		t.Fatal("expected at least one partial before the final")
	}
	if firstFinal < lastPartial {
		t.Errorf("final at index %d precedes partial at index %d", firstFinal, lastPartial)
	}

	last := got[len(got)-1]
	if last.Type != events.TypeFinal {
		t.Errorf("expected session-final last, got %s", last.Type)
	}
	if last.Text != "hello world" {
		t.Errorf("unexpected session transcript: %q", last.Text)
	}
}

func TestSessionDiscardsShortUtterances(t *testing.T) {
	var calls atomic.Int32
	engine := stubEngine(&calls)
	defer engine.Close()

	cfg := testConfig(engine.URL)
	// Disable partial flushing so only finalize could reach the engine.
	cfg.Segmenter.PartialInterval = 10

	// 4 speech frames is well below the 200ms minimum
	source := &timedSource{frames: buildFrames(4, 15), delay: time.Millisecond}
	got := runSession(t, cfg, source)

	if n := calls.Load(); n != 0 {
		t.Errorf("short utterance reached the engine %d times", n)
	}
	for _, e := range got {
		if e.Type == events.TypeTranscription {
			t.Errorf("unexpected transcription event: %+v", e)
		}
	}
}

func TestSessionFatalCaptureError(t *testing.T) {
	engine := stubEngine(nil)
	defer engine.Close()

	got := runSession(t, testConfig(engine.URL), &failingSource{remaining: 3})

	var errs int
	for _, e := range got {
		if e.Type == events.TypeError {
			errs++
		}
	}
	if errs != 1 {
		t.Fatalf("expected exactly one error event, got %d (events: %+v)", errs, got)
	}
	last := got[len(got)-1]
	if last.Type != events.TypeError || last.Message != "microphone unplugged" {
		t.Errorf("expected terminal capture error, got %+v", last)
	}
}

func TestSessionStopFlushesBufferedSpeech(t *testing.T) {
	engine := stubEngine(nil)
	defer engine.Close()

	cfg := testConfig(engine.URL)
	mgr := NewManager(cfg, testMetrics, testLogger())
	defer mgr.Stop()

	// Endless speech: the session only ends because Stop is called.
	frames := buildFrames(2000, 0)
	source := &timedSource{frames: frames, delay: time.Millisecond}

	sess, err := mgr.StartSession(context.Background(), source)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	go func() {
		time.Sleep(700 * time.Millisecond)
		sess.Stop()
	}()

	var sawFinalTranscription bool
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-sess.Events():
			if !ok {
				if !sawFinalTranscription {
					t.Error("stop dropped buffered speech without a final transcription")
				}
				return
			}
			if e.Type == events.TypeTranscription && e.IsFinal {
				sawFinalTranscription = true
			}
		case <-deadline:
			t.Fatal("session did not stop")
		}
	}
}

func TestManagerSessionLimit(t *testing.T) {
	engine := stubEngine(nil)
	defer engine.Close()

	cfg := testConfig(engine.URL)
	cfg.HTTP.MaxSessions = 1

	mgr := NewManager(cfg, testMetrics, testLogger())
	defer mgr.Stop()

	source := &timedSource{frames: buildFrames(2000, 0), delay: time.Millisecond}
	sess, err := mgr.StartSession(context.Background(), source)
	if err != nil {
		t.Fatalf("first session failed: %v", err)
	}
	defer sess.Stop()

	if _, err := mgr.StartSession(context.Background(), &timedSource{}); err == nil {
		t.Error("expected session limit error")
	}
}

func TestAttributeRecordingDiarizationFallback(t *testing.T) {
	transcriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {
			"transcription": "hello there",
			"timestamps": [{"text": "hello there", "timestamp": [0.0, 1.0]}]
		}}`))
	}))
	defer transcriber.Close()

	diarizer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer diarizer.Close()

	cfg := testConfig(transcriber.URL)
	cfg.Diarization.Endpoint = diarizer.URL

	mgr := NewManager(cfg, testMetrics, testLogger())
	defer mgr.Stop()

	samples := make([]int16, 16000)
	wav, err := audio.EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	turns, numSpeakers, err := mgr.AttributeRecording(context.Background(), wav)
	if err != nil {
		t.Fatalf("AttributeRecording failed: %v", err)
	}
	if numSpeakers != 0 {
		t.Errorf("expected 0 speakers on fallback, got %d", numSpeakers)
	}
	if len(turns) != 1 || turns[0].SpeakerID != "SPEAKER_UNKNOWN" {
		t.Errorf("expected single unknown turn, got %+v", turns)
	}
}

func TestAttributeRecordingAligns(t *testing.T) {
	transcriber := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {
			"transcription": "hi how are you fine thanks",
			"timestamps": [
				{"text": "hi how are you", "timestamp": [0.0, 2.0]},
				{"text": "fine thanks", "timestamp": [2.0, 4.0]}
			]
		}}`))
	}))
	defer transcriber.Close()

	diarizer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {
			"speakers": [
				{"speaker_id": "SPEAKER_00", "start": 0.0, "end": 2.0},
				{"speaker_id": "SPEAKER_01", "start": 2.0, "end": 4.0}
			],
			"numSpeakers": 2
		}}`))
	}))
	defer diarizer.Close()

	cfg := testConfig(transcriber.URL)
	cfg.Diarization.Endpoint = diarizer.URL

	mgr := NewManager(cfg, testMetrics, testLogger())
	defer mgr.Stop()

	samples := make([]int16, 64000)
	wav, err := audio.EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	turns, numSpeakers, err := mgr.AttributeRecording(context.Background(), wav)
	if err != nil {
		t.Fatalf("AttributeRecording failed: %v", err)
	}
	if numSpeakers != 2 || len(turns) != 2 {
		t.Fatalf("expected 2 speakers and 2 turns, got %d/%d", numSpeakers, len(turns))
	}
	if turns[0].SpeakerID != "SPEAKER_00" || turns[1].SpeakerID != "SPEAKER_01" {
		t.Errorf("unexpected attribution: %+v", turns)
	}
}
