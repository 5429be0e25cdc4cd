package events

import (
	"sync"
	"time"
)

// Type identifies the kind of a stream event
type Type string

const (
	// TypeStatus signals session readiness
	TypeStatus Type = "status"
	// TypeTranscription carries partial or final utterance text
	TypeTranscription Type = "transcription"
	// TypeFinal is the terminal successful result for a session
	TypeFinal Type = "final"
	// TypeError carries a failure message; it terminates the session
	// only when the underlying failure is fatal
	TypeError Type = "error"
)

// Event is one element of a session's ordered result stream
type Event struct {
	Type      Type      `json:"type"`
	Text      string    `json:"text,omitempty"`
	IsFinal   bool      `json:"is_final"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream is an ordered sequence of typed events for one session.
// Emission order is delivery order: all emitters are serialized on an
// internal mutex and feed a single channel, so a consumer observing
// event A before event B knows A was emitted first.
//
// Once a final event is sent, only error events may follow; emits of
// any other kind are dropped. Close is idempotent.
type Stream struct {
	ch chan Event

	mu       sync.Mutex
	closed   bool
	sawFinal bool
}

// NewStream creates a stream with the given channel buffer. A full
// buffer applies backpressure by blocking the emitter.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Events returns the consumer side of the stream. The channel is
// closed when the session terminates.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Status emits a session readiness event
func (s *Stream) Status(message string) {
	s.emit(Event{Type: TypeStatus, Message: message})
}

// Transcription emits utterance text. isFinal is false for partial
// snapshots of an in-progress utterance and true for the
// authoritative transcription produced on finalize.
func (s *Stream) Transcription(text string, isFinal bool) {
	s.emit(Event{Type: TypeTranscription, Text: text, IsFinal: isFinal})
}

// Final emits the terminal successful result for the session
func (s *Stream) Final(text string) {
	s.emit(Event{Type: TypeFinal, Text: text, IsFinal: true})
}

// Error emits a recoverable failure; the session continues
func (s *Stream) Error(message string) {
	s.emit(Event{Type: TypeError, Message: message})
}

// Fatal emits a terminal error event and closes the stream. No
// further events can be observed after it.
func (s *Stream) Fatal(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.ch <- Event{Type: TypeError, Message: message, Timestamp: time.Now().UTC()}
	s.closed = true
	close(s.ch)
}

// Close terminates the stream. Pending buffered events remain
// readable by the consumer.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Stream) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	// A final event is the last non-error event for the session.
	if s.sawFinal && e.Type != TypeError {
		return
	}
	if e.Type == TypeFinal {
		s.sawFinal = true
	}

	e.Timestamp = time.Now().UTC()
	s.ch <- e
}
