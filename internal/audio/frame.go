package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
)

// Frame is a fixed-duration block of PCM-16 samples. Frames carry a
// monotonically increasing sequence index assigned by their source and
// are consumed exactly once by the segmenter.
type Frame struct {
	Samples  []int16
	Seq      uint64
	Duration time.Duration
}

// FrameSource yields audio frames from a capture device, a streaming
// request body or a decoded file. Next blocks until a full frame is
// available and returns io.EOF once the source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// ReaderSource reads raw little-endian PCM-16 from an io.Reader and
// slices it into fixed-duration frames. The final short frame (if any)
// is zero-padded to full length so downstream consumers always see
// uniform frames.
type ReaderSource struct {
	r             io.Reader
	frameSamples  int
	frameDuration time.Duration
	seq           uint64
	buf           []byte
}

// NewReaderSource creates a frame source over r. sampleRate and
// frameDuration determine the fixed frame size.
func NewReaderSource(r io.Reader, sampleRate int, frameDuration time.Duration) (*ReaderSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if frameDuration <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %s", frameDuration)
	}

	frameSamples := int(int64(sampleRate) * int64(frameDuration) / int64(time.Second))
	if frameSamples == 0 {
		return nil, fmt.Errorf("frame duration %s too short for sample rate %d", frameDuration, sampleRate)
	}

	return &ReaderSource{
		r:             r,
		frameSamples:  frameSamples,
		frameDuration: frameDuration,
		buf:           make([]byte, frameSamples*2),
	}, nil
}

// Next reads one frame. A context cancellation is observed at the
// frame boundary before the blocking read.
func (s *ReaderSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	n, err := io.ReadFull(s.r, s.buf)
	if err == io.ErrUnexpectedEOF {
		// Partial trailing frame: pad with silence.
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
	} else if err != nil {
		return Frame{}, err
	}

	samples := make([]int16, s.frameSamples)
	for i := 0; i < s.frameSamples; i++ {
		samples[i] = int16(s.buf[i*2]) | int16(s.buf[i*2+1])<<8
	}

	frame := Frame{
		Samples:  samples,
		Seq:      s.seq,
		Duration: s.frameDuration,
	}
	s.seq++

	return frame, nil
}

// NewWAVSource decodes a PCM-16 mono WAV payload and returns a frame
// source over its samples together with the file's sample rate.
func NewWAVSource(data []byte, frameDuration time.Duration) (*ReaderSource, int, error) {
	samples, sampleRate, err := DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wav: %w", err)
	}

	raw := make([]byte, len(samples)*2)
	for i, sample := range samples {
		raw[i*2] = byte(sample)
		raw[i*2+1] = byte(sample >> 8)
	}

	source, err := NewReaderSource(bytes.NewReader(raw), sampleRate, frameDuration)
	if err != nil {
		return nil, 0, err
	}

	return source, sampleRate, nil
}

// SamplesToBytes converts PCM samples to little-endian bytes, the
// layout expected by the transcription engine for raw audio.
func SamplesToBytes(samples []int16) []byte {
	raw := make([]byte, len(samples)*2)
	for i, sample := range samples {
		raw[i*2] = byte(sample)
		raw[i*2+1] = byte(sample >> 8)
	}
	return raw
}
