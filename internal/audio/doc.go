// Package audio provides PCM frame types, frame sources and WAV
// encoding for 16-bit mono audio.
package audio
