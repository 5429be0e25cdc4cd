package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Address:        "0.0.0.0",
			MaxSessions:    50,
			SessionTimeout: 600,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			FrameDuration: 30,
		},
		VAD: VADConfig{
			Aggressiveness: 2,
			EnergyFloor:    120,
		},
		Segmenter: SegmenterConfig{
			SilenceTimeout:  2.0,
			MinUtterance:    0.5,
			PartialInterval: 1.5,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			Language:      "en",
			Timeout:       30,
			MaxConcurrent: 4,
		},
		Diarization: DiarizationConfig{
			Endpoint: "http://localhost:9001/diarize",
			Timeout:  120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestValidConfigPasses(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
http:
  port: 9090
  address: "127.0.0.1"
  max_sessions: 10
  session_timeout: 300
audio:
  sample_rate: 8000
  channels: 1
  bit_depth: 16
  frame_duration: 20
vad:
  aggressiveness: 3
  energy_floor: 200.0
segmenter:
  silence_timeout: 1.5
  min_utterance: 0.4
  partial_interval: 1.0
transcription:
  endpoint: "http://engine:9000/transcribe"
  language: "uk"
  timeout: 15
  max_concurrent: 2
diarization:
  endpoint: "http://engine:9001/diarize"
  timeout: 60
  min_speakers: 1
  max_speakers: 4
logging:
  level: "debug"
  format: "text"
  output: "stderr"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 9090 || cfg.Audio.SampleRate != 8000 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Transcription.Language != "uk" {
		t.Errorf("expected language uk, got %s", cfg.Transcription.Language)
	}
	if cfg.Diarization.MaxSpeakers != 4 {
		t.Errorf("expected max_speakers 4, got %d", cfg.Diarization.MaxSpeakers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"empty address", func(c *Config) { c.HTTP.Address = "" }},
		{"zero sessions", func(c *Config) { c.HTTP.MaxSessions = 0 }},
		{"bad sample rate", func(c *Config) { c.Audio.SampleRate = 44100 }},
		{"stereo", func(c *Config) { c.Audio.Channels = 2 }},
		{"bad bit depth", func(c *Config) { c.Audio.BitDepth = 24 }},
		{"bad frame duration", func(c *Config) { c.Audio.FrameDuration = 25 }},
		{"aggressiveness too high", func(c *Config) { c.VAD.Aggressiveness = 4 }},
		{"negative energy floor", func(c *Config) { c.VAD.EnergyFloor = -1 }},
		{"zero silence timeout", func(c *Config) { c.Segmenter.SilenceTimeout = 0 }},
		{"min utterance above timeout", func(c *Config) { c.Segmenter.MinUtterance = 3.0 }},
		{"zero partial interval", func(c *Config) { c.Segmenter.PartialInterval = 0 }},
		{"empty transcription endpoint", func(c *Config) { c.Transcription.Endpoint = "" }},
		{"zero max concurrent", func(c *Config) { c.Transcription.MaxConcurrent = 0 }},
		{"empty diarization endpoint", func(c *Config) { c.Diarization.Endpoint = "" }},
		{"speaker bounds inverted", func(c *Config) { c.Diarization.MinSpeakers = 3; c.Diarization.MaxSpeakers = 2 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := validConfig()

	if got := cfg.Audio.GetFrameDuration(); got != 30*time.Millisecond {
		t.Errorf("frame duration: %s", got)
	}
	if got := cfg.Audio.FrameSamples(); got != 480 {
		t.Errorf("frame samples: %d", got)
	}
	if got := cfg.Segmenter.GetSilenceTimeout(); got != 2*time.Second {
		t.Errorf("silence timeout: %s", got)
	}
	if got := cfg.Segmenter.GetMinUtterance(); got != 500*time.Millisecond {
		t.Errorf("min utterance: %s", got)
	}
	if got := cfg.Segmenter.GetPartialInterval(); got != 1500*time.Millisecond {
		t.Errorf("partial interval: %s", got)
	}
	if got := cfg.Transcription.GetTimeoutDuration(); got != 30*time.Second {
		t.Errorf("transcription timeout: %s", got)
	}
	if got := cfg.HTTP.GetSessionTimeout(); got != 600*time.Second {
		t.Errorf("session timeout: %s", got)
	}
}
