package segment

import (
	"fmt"
	"time"

	"github.com/KyleGal/live-translation-api/internal/audio"
)

// State represents the segmenter's position in the speech/silence
// state machine
type State int

const (
	// StateIdle means no utterance is active
	StateIdle State = iota
	// StateSpeaking means an utterance is accumulating frames
	StateSpeaking
)

// Config contains segmentation thresholds
type Config struct {
	// SilenceTimeout is the accumulated silence that finalizes an
	// active utterance.
	SilenceTimeout time.Duration
	// MinUtterance is the minimum speech span; shorter utterances are
	// discarded without reaching the transcription engine.
	MinUtterance time.Duration
}

// Stats reports segmenter counters for monitoring
type Stats struct {
	State          string        `json:"state"`
	Finalized      uint64        `json:"utterances_finalized"`
	Discarded      uint64        `json:"utterances_discarded"`
	TotalSpeech    time.Duration `json:"total_speech"`
	ActiveDuration time.Duration `json:"active_duration"`
}

// Segmenter converts an ordered stream of (frame, VAD decision) pairs
// into discrete utterances. At most one utterance is active at a time
// and all mutation happens through Push/Flush, so a single goroutine
// owning the segmenter needs no locking.
//
// Silence is accounted in frame time, not wall-clock time: the silence
// run grows by each silence frame's duration. Identical frame
// sequences therefore always segment identically.
type Segmenter struct {
	config  Config
	state   State
	current *Utterance

	silenceRun time.Duration
	lastSeq    uint64
	seenFrame  bool

	finalized   uint64
	discarded   uint64
	totalSpeech time.Duration
}

// NewSegmenter creates a segmenter with the given thresholds
func NewSegmenter(config Config) *Segmenter {
	return &Segmenter{
		config: config,
		state:  StateIdle,
	}
}

// Push feeds one classified frame through the state machine. It
// returns a finalized utterance when the silence run reaches the
// configured timeout, or nil otherwise. Utterances whose speech span
// is below the minimum are discarded and never returned.
func (s *Segmenter) Push(frame audio.Frame, isSpeech bool) (*Utterance, error) {
	if s.seenFrame && frame.Seq <= s.lastSeq {
		return nil, fmt.Errorf("frame sequence must be strictly increasing: got %d after %d", frame.Seq, s.lastSeq)
	}
	s.lastSeq = frame.Seq
	s.seenFrame = true

	switch s.state {
	case StateIdle:
		if !isSpeech {
			return nil, nil
		}
		s.current = newUtterance(frame.Seq)
		s.silenceRun = 0
		s.state = StateSpeaking
		s.append(frame)

	case StateSpeaking:
		s.append(frame)
		if isSpeech {
			s.silenceRun = 0
		} else {
			s.silenceRun += frame.Duration
			if s.silenceRun >= s.config.SilenceTimeout {
				return s.finalize(), nil
			}
		}
	}

	return nil, nil
}

// Flush finalizes the active utterance immediately, used on an
// explicit stop signal so buffered speech is never silently dropped.
// It returns nil when the segmenter is idle or the utterance is below
// the minimum duration.
func (s *Segmenter) Flush() *Utterance {
	if s.state == StateIdle {
		return nil
	}
	return s.finalize()
}

// Snapshot copies the active utterance's buffered samples for a
// partial transcription. It does not reset the silence run or any
// other finalize accounting. The second return value is false when no
// utterance is active.
func (s *Segmenter) Snapshot() ([]int16, bool) {
	if s.current == nil {
		return nil, false
	}
	return s.current.snapshot(), true
}

// Active returns the in-progress utterance, or nil when idle
func (s *Segmenter) Active() *Utterance {
	return s.current
}

// State returns the current state machine position
func (s *Segmenter) State() State {
	return s.state
}

// GetStats returns current segmenter statistics
func (s *Segmenter) GetStats() Stats {
	stateStr := "idle"
	if s.state == StateSpeaking {
		stateStr = "speaking"
	}

	var active time.Duration
	if s.current != nil {
		active = s.current.Duration
	}

	return Stats{
		State:          stateStr,
		Finalized:      s.finalized,
		Discarded:      s.discarded,
		TotalSpeech:    s.totalSpeech,
		ActiveDuration: active,
	}
}

func (s *Segmenter) append(frame audio.Frame) {
	u := s.current
	u.samples = append(u.samples, frame.Samples...)
	u.EndSeq = frame.Seq
	u.Duration += frame.Duration
}

func (s *Segmenter) finalize() *Utterance {
	u := s.current
	u.SpeechDuration = u.Duration - s.silenceRun
	u.State = StateFinalized

	s.current = nil
	s.silenceRun = 0
	s.state = StateIdle

	if u.SpeechDuration < s.config.MinUtterance {
		s.discarded++
		return nil
	}

	s.finalized++
	s.totalSpeech += u.SpeechDuration
	return u
}
