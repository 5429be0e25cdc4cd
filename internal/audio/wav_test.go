package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Errorf("unexpected encoded size: %d", len(data))
	}

	decoded, sampleRate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if sampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", sampleRate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAVRejectsEmptyInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeWAVRejectsTruncatedData(t *testing.T) {
	data, err := EncodeWAV(make([]int16, 1000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if _, _, err := DecodeWAV(data[:len(data)-100]); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestValidateWAV(t *testing.T) {
	data, err := EncodeWAV(make([]int16, 100), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if err := ValidateWAV(data); err != nil {
		t.Errorf("valid WAV rejected: %v", err)
	}

	if err := ValidateWAV([]byte("too short")); err == nil {
		t.Error("expected error for short data")
	}

	bad := make([]byte, len(data))
	copy(bad, data)
	copy(bad[0:4], "JUNK")
	if err := ValidateWAV(bad); err == nil {
		t.Error("expected error for missing RIFF marker")
	}
}

func TestWAVDuration(t *testing.T) {
	data, err := EncodeWAV(make([]int16, 16000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := WAVDuration(data)
	if err != nil {
		t.Fatalf("WAVDuration failed: %v", err)
	}
	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("expected 1.0s, got %f", duration)
	}
}
