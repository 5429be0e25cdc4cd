package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ErrNoSpeech is returned when the engine found no speech to diarize
var ErrNoSpeech = errors.New("no speech found for diarization")

// Error is a diarization failure. Callers fall back to unattributed
// output instead of failing the whole request.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("diarization failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("diarization failed: %s", e.Message)
}

// DiarizationResult is a parsed engine response
type DiarizationResult struct {
	Segments    []SpeakerSegment
	NumSpeakers int
}

// Client talks to the speaker-diarization engine over HTTP
type Client struct {
	endpoint    string
	minSpeakers int
	maxSpeakers int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a diarization client. minSpeakers and maxSpeakers
// bound the engine's speaker search; zero leaves the bound to the
// engine.
func NewClient(endpoint string, timeout time.Duration, minSpeakers, maxSpeakers int, logger *slog.Logger) *Client {
	return &Client{
		endpoint:    endpoint,
		minSpeakers: minSpeakers,
		maxSpeakers: maxSpeakers,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Diarize sends a complete WAV recording to the engine and returns the
// diarized speaker segments.
func (c *Client) Diarize(ctx context.Context, wav []byte) (*DiarizationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(wav))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "audio/wav")
	if c.minSpeakers > 0 {
		req.Header.Set("X-Min-Speakers", strconv.Itoa(c.minSpeakers))
	}
	if c.maxSpeakers > 0 {
		req.Header.Set("X-Max-Speakers", strconv.Itoa(c.maxSpeakers))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Message: string(body)}
	}

	result, err := parseResponse(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Diarization completed",
		"wav_bytes", len(wav),
		"segments", len(result.Segments),
		"num_speakers", result.NumSpeakers,
		"latency", time.Since(start))
	return result, nil
}

type responseEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Speakers []struct {
			SpeakerID string  `json:"speaker_id"`
			Start     float64 `json:"start"`
			End       float64 `json:"end"`
		} `json:"speakers"`
		NumSpeakers int `json:"numSpeakers"`
	} `json:"data"`
}

func parseResponse(body []byte) (*DiarizationResult, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid response JSON: %v", err)}
	}
	if !envelope.Success {
		return nil, &Error{Message: envelope.Error}
	}
	if len(envelope.Data.Speakers) == 0 {
		return nil, ErrNoSpeech
	}

	result := &DiarizationResult{NumSpeakers: envelope.Data.NumSpeakers}
	for _, s := range envelope.Data.Speakers {
		result.Segments = append(result.Segments, SpeakerSegment{
			SpeakerID: s.SpeakerID,
			Start:     s.Start,
			End:       s.End,
		})
	}
	return result, nil
}
