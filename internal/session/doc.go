// Package session runs the live transcription pipeline: a capture
// goroutine classifies frames with VAD and feeds a bounded channel, a
// processing goroutine segments them into utterances, and partial and
// final transcriptions are emitted on an ordered event stream.
package session
