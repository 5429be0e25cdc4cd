package transcription

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
	"sync"
	"time"
)

// ErrAudioTooShort is returned for audio below the engine's minimum
// usable length. Callers discard the request silently rather than
// surfacing it to the consumer.
var ErrAudioTooShort = errors.New("audio too short for transcription")

// Error is a recoverable transcription failure. A session receiving
// one reports it and keeps running.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transcription failed: %s", e.Message)
}

// Chunk is one timestamped span of transcribed text. End is zero when
// the engine could not bound the span.
type Chunk struct {
	Text  string
	Start float64
	End   float64
}

// Result is a parsed engine response
type Result struct {
	Text   string
	Chunks []Chunk
}

// ClientStats contains client counters for monitoring
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	TotalAudioBytes uint64        `json:"total_audio_bytes"`
	AverageLatency  time.Duration `json:"average_latency"`
}

// Client talks to the transcription engine over HTTP. Concurrency is
// bounded by a semaphore so a burst of utterances cannot overload the
// engine. Failed requests are not retried; the caller decides whether
// a failure is worth reporting.
type Client struct {
	endpoint   string
	language   string
	httpClient *http.Client
	semaphore  chan struct{}
	logger     *slog.Logger

	statsMu      sync.Mutex
	stats        ClientStats
	totalLatency time.Duration
}

// NewClient creates a transcription client. maxConcurrent bounds
// simultaneous in-flight requests.
func NewClient(endpoint, language string, timeout time.Duration, maxConcurrent int, logger *slog.Logger) *Client {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Client{
		endpoint:   endpoint,
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
		semaphore:  make(chan struct{}, maxConcurrent),
		logger:     logger,
	}
}

// Transcribe sends raw PCM audio (16-bit little-endian mono) to the
// engine and returns the parsed result.
func (c *Client) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	if len(pcm) == 0 {
		return nil, ErrAudioTooShort
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	result, err := c.post(ctx, pcm, sampleRate)
	latency := time.Since(start)

	c.recordRequest(uint64(len(pcm)), latency, err != nil)

	if err != nil {
		c.logger.Warn("Transcription request failed",
			"error", err,
			"audio_bytes", len(pcm),
			"latency", latency)
		return nil, err
	}

	c.logger.Debug("Transcription completed",
		"audio_bytes", len(pcm),
		"latency", latency,
		"chars", len(result.Text))
	return result, nil
}

func (c *Client) post(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(pcm))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Sample-Rate", strconv.Itoa(sampleRate))
	if c.language != "" {
		req.Header.Set("X-Source-Language", c.language)
	}

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

	return parseResponse(body)
}

// engine response envelope: {"success": bool, "data": {...}} with an
// optional top-level "error" message on failure
type responseEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Transcription string `json:"transcription"`
		Timestamps    []struct {
			Text      string     `json:"text"`
			Timestamp []*float64 `json:"timestamp"`
		} `json:"timestamps"`
	} `json:"data"`
}

func parseResponse(body []byte) (*Result, error) {
	var envelope responseEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid response JSON: %v", err)}
	}
	if !envelope.Success {
		return nil, &Error{Message: envelope.Error}
	}

	result := &Result{Text: envelope.Data.Transcription}
	for _, ts := range envelope.Data.Timestamps {
		chunk := Chunk{Text: ts.Text}
		// timestamp is [start, end]; end may be null for the last chunk
		if len(ts.Timestamp) > 0 && ts.Timestamp[0] != nil {
			chunk.Start = *ts.Timestamp[0]
		}
		if len(ts.Timestamp) > 1 && ts.Timestamp[1] != nil {
			chunk.End = *ts.Timestamp[1]
		} else {
			chunk.End = chunk.Start
		}
		result.Chunks = append(result.Chunks, chunk)
	}
	return result, nil
}

func (c *Client) recordRequest(audioBytes uint64, latency time.Duration, failed bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.stats.TotalRequests++
	c.stats.TotalAudioBytes += audioBytes
	c.totalLatency += latency
	if failed {
		c.stats.FailedRequests++
	}
	c.stats.AverageLatency = c.totalLatency / time.Duration(c.stats.TotalRequests)
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}
