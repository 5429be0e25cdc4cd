// Package transcription provides the HTTP client for the external
// speech-to-text engine.
package transcription
