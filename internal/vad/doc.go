// Package vad provides per-frame voice activity detection with
// webrtcvad-style aggressiveness levels.
package vad
