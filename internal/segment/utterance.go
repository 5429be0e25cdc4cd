package segment

import (
	"time"

	"github.com/google/uuid"
)

// UtteranceState tracks the lifecycle of an utterance
type UtteranceState int

const (
	// StateAccumulating means the utterance is still receiving frames
	StateAccumulating UtteranceState = iota
	// StateFlushed means at least one partial snapshot was taken while
	// the utterance was still accumulating
	StateFlushed
	// StateFinalized means the utterance is complete and owned by the
	// caller; the segmenter will never touch it again
	StateFinalized
)

// String returns a human-readable state name
func (s UtteranceState) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateFlushed:
		return "flushed"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Utterance is a contiguous buffered span of audio between silence
// boundaries. It accumulates both speech frames and the silence frames
// that follow them, so trailing speech is never truncated.
type Utterance struct {
	ID        string
	StartTime time.Time
	StartSeq  uint64
	EndSeq    uint64

	// Duration covers every buffered frame; SpeechDuration excludes
	// the trailing silence run.
	Duration       time.Duration
	SpeechDuration time.Duration

	State   UtteranceState
	samples []int16
}

func newUtterance(startSeq uint64) *Utterance {
	return &Utterance{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		StartSeq:  startSeq,
		EndSeq:    startSeq,
		State:     StateAccumulating,
	}
}

// Samples returns the buffered PCM samples. The slice is owned by the
// utterance; callers that outlive it must copy.
func (u *Utterance) Samples() []int16 {
	return u.samples
}

// snapshot returns a copy of the buffered samples without mutating
// accumulation state beyond marking the utterance flushed.
func (u *Utterance) snapshot() []int16 {
	out := make([]int16, len(u.samples))
	copy(out, u.samples)
	if u.State == StateAccumulating {
		u.State = StateFlushed
	}
	return out
}
