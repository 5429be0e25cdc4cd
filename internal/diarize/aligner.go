package diarize

import (
	"math"
	"strings"
)

// SpeakerUnknown labels chunks that could not be attributed to any
// diarized speaker
const SpeakerUnknown = "SPEAKER_UNKNOWN"

// TranscriptChunk is a timestamped span of transcribed text
type TranscriptChunk struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SpeakerSegment is a diarized time range attributed to one speaker
type SpeakerSegment struct {
	SpeakerID string  `json:"speaker_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// AttributedTurn is a run of consecutive transcript chunks attributed
// to the same speaker
type AttributedTurn struct {
	SpeakerID string  `json:"speaker_id"`
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Align attributes each transcript chunk to the speaker segment it
// overlaps most, then merges consecutive chunks sharing a speaker into
// turns. The function is pure: identical inputs always produce
// identical output.
//
// Attribution rules, in order:
//   - most temporal overlap wins
//   - overlap ties break toward the segment with the earlier start
//   - a chunk overlapping nothing goes to the segment whose midpoint
//     is nearest its own
//   - with no segments at all, every chunk is SpeakerUnknown
//
// A chunk spanning a mid-chunk speaker change is attributed whole to
// the dominant speaker; text is never split below chunk granularity.
func Align(chunks []TranscriptChunk, segments []SpeakerSegment) []AttributedTurn {
	if len(chunks) == 0 {
		return nil
	}

	labeled := make([]AttributedTurn, len(chunks))
	for i, chunk := range chunks {
		labeled[i] = AttributedTurn{
			SpeakerID: bestSpeaker(chunk, segments),
			Text:      chunk.Text,
			Start:     chunk.Start,
			End:       chunk.End,
		}
	}

	return mergeTurns(labeled)
}

// bestSpeaker picks the segment with the most overlap, falling back to
// midpoint distance when nothing overlaps.
func bestSpeaker(chunk TranscriptChunk, segments []SpeakerSegment) string {
	if len(segments) == 0 {
		return SpeakerUnknown
	}

	best := -1
	bestOverlap := 0.0
	for i, seg := range segments {
		ov := overlap(chunk, seg)
		if ov > bestOverlap || (ov == bestOverlap && ov > 0 && seg.Start < segments[best].Start) {
			best = i
			bestOverlap = ov
		}
	}

	if best >= 0 {
		return segments[best].SpeakerID
	}

	// No overlap anywhere: nearest segment midpoint wins.
	mid := (chunk.Start + chunk.End) / 2
	nearest := 0
	nearestDist := math.Inf(1)
	for i, seg := range segments {
		dist := math.Abs((seg.Start+seg.End)/2 - mid)
		if dist < nearestDist {
			nearest = i
			nearestDist = dist
		}
	}
	return segments[nearest].SpeakerID
}

func overlap(chunk TranscriptChunk, seg SpeakerSegment) float64 {
	ov := math.Min(chunk.End, seg.End) - math.Max(chunk.Start, seg.Start)
	if ov < 0 {
		return 0
	}
	return ov
}

// mergeTurns collapses consecutive chunks with the same speaker into a
// single turn, joining text with single spaces and widening the time
// range to cover both.
func mergeTurns(labeled []AttributedTurn) []AttributedTurn {
	merged := []AttributedTurn{labeled[0]}
	for _, turn := range labeled[1:] {
		last := &merged[len(merged)-1]
		if turn.SpeakerID == last.SpeakerID {
			last.Text = strings.TrimSpace(last.Text + " " + turn.Text)
			last.Start = math.Min(last.Start, turn.Start)
			last.End = math.Max(last.End, turn.End)
			continue
		}
		merged = append(merged, turn)
	}
	return merged
}
