// Package diarize provides the speaker-diarization engine client and
// the alignment algorithm that attributes transcript chunks to
// speakers.
package diarize
