// Package events defines the ordered, session-scoped event stream
// delivered to transcription consumers, and its SSE wire encoding.
package events
