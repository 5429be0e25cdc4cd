package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Diarization   DiarizationConfig   `yaml:"diarization"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port           int    `yaml:"port"`
	Address        string `yaml:"address"`
	MaxSessions    int    `yaml:"max_sessions"`
	SessionTimeout int    `yaml:"session_timeout"` // seconds of inactivity before cleanup
}

// AudioConfig contains audio stream parameters
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BitDepth      int `yaml:"bit_depth"`
	FrameDuration int `yaml:"frame_duration"` // milliseconds per frame
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	Aggressiveness int     `yaml:"aggressiveness"` // 0 (lenient) to 3 (aggressive)
	EnergyFloor    float64 `yaml:"energy_floor"`   // RMS level treated as certain silence
}

// SegmenterConfig contains utterance segmentation parameters
type SegmenterConfig struct {
	SilenceTimeout  float64 `yaml:"silence_timeout"`  // seconds of silence that finalizes an utterance
	MinUtterance    float64 `yaml:"min_utterance"`    // seconds; shorter utterances are discarded
	PartialInterval float64 `yaml:"partial_interval"` // seconds between partial transcriptions
}

// TranscriptionConfig contains transcription engine configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// DiarizationConfig contains diarization engine configuration
type DiarizationConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Timeout     int    `yaml:"timeout"` // seconds
	MinSpeakers int    `yaml:"min_speakers"`
	MaxSpeakers int    `yaml:"max_speakers"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Diarization.Validate(); err != nil {
		return fmt.Errorf("diarization config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", h.MaxSessions)
	}

	if h.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", h.SessionTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 8000 or 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.FrameDuration != 10 && a.FrameDuration != 20 && a.FrameDuration != 30 {
		return fmt.Errorf("frame_duration must be 10, 20 or 30 ms, got %d", a.FrameDuration)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Aggressiveness < 0 || v.Aggressiveness > 3 {
		return fmt.Errorf("aggressiveness must be between 0 and 3, got %d", v.Aggressiveness)
	}

	if v.EnergyFloor < 0 {
		return fmt.Errorf("energy_floor cannot be negative, got %f", v.EnergyFloor)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.SilenceTimeout <= 0 {
		return fmt.Errorf("silence_timeout must be positive, got %f", s.SilenceTimeout)
	}

	if s.MinUtterance <= 0 {
		return fmt.Errorf("min_utterance must be positive, got %f", s.MinUtterance)
	}

	if s.MinUtterance >= s.SilenceTimeout {
		return fmt.Errorf("min_utterance (%f) must be less than silence_timeout (%f)",
			s.MinUtterance, s.SilenceTimeout)
	}

	if s.PartialInterval <= 0 {
		return fmt.Errorf("partial_interval must be positive, got %f", s.PartialInterval)
	}

	return nil
}

// Validate validates transcription engine configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates diarization engine configuration
func (d *DiarizationConfig) Validate() error {
	if d.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if d.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", d.Timeout)
	}

	// zero leaves the speaker-count bound to the engine
	if d.MinSpeakers < 0 {
		return fmt.Errorf("min_speakers cannot be negative, got %d", d.MinSpeakers)
	}

	if d.MaxSpeakers < 0 {
		return fmt.Errorf("max_speakers cannot be negative, got %d", d.MaxSpeakers)
	}

	if d.MaxSpeakers > 0 && d.MaxSpeakers < d.MinSpeakers {
		return fmt.Errorf("max_speakers (%d) must be >= min_speakers (%d)",
			d.MaxSpeakers, d.MinSpeakers)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetFrameDuration returns the frame duration as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameDuration) * time.Millisecond
}

// FrameSamples returns the number of PCM samples in one frame
func (a *AudioConfig) FrameSamples() int {
	return a.SampleRate * a.FrameDuration / 1000
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (s *SegmenterConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeout * float64(time.Second))
}

// GetMinUtterance returns the minimum utterance duration as a time.Duration
func (s *SegmenterConfig) GetMinUtterance() time.Duration {
	return time.Duration(s.MinUtterance * float64(time.Second))
}

// GetPartialInterval returns the partial flush interval as a time.Duration
func (s *SegmenterConfig) GetPartialInterval() time.Duration {
	return time.Duration(s.PartialInterval * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the diarization timeout as a time.Duration
func (d *DiarizationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// GetSessionTimeout returns the session inactivity timeout as a time.Duration
func (h *HTTPConfig) GetSessionTimeout() time.Duration {
	return time.Duration(h.SessionTimeout) * time.Second
}
