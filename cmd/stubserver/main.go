// Command stubserver emulates the transcription and diarization
// engines for local development: it accepts the same requests as the
// real engines and answers with canned results sized to the audio it
// receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	port := flag.Int("port", 9000, "port to listen on")
	delay := flag.Duration("delay", 200*time.Millisecond, "simulated processing delay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "failed to read body"})
			return
		}

		sampleRate := 16000
		if h := r.Header.Get("X-Sample-Rate"); h != "" {
			if parsed, err := strconv.Atoi(h); err == nil {
				sampleRate = parsed
			}
		}
		seconds := float64(len(body)) / float64(sampleRate*2)

		time.Sleep(*delay)
		logger.Info("Stub transcription",
			"bytes", len(body),
			"seconds", fmt.Sprintf("%.2f", seconds),
			"language", r.Header.Get("X-Source-Language"))

		text := fmt.Sprintf("stub transcription of %.1f seconds of audio", seconds)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"transcription": text,
				"timestamps": []map[string]any{
					{"text": text, "timestamp": []any{0.0, seconds}},
				},
			},
		})
	})

	mux.HandleFunc("POST /diarize", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "failed to read body"})
			return
		}

		// WAV header is 44 bytes, 16-bit mono assumed
		seconds := float64(len(body)-44) / float64(16000*2)
		if seconds < 0 {
			seconds = 0
		}
		half := seconds / 2

		time.Sleep(*delay)
		logger.Info("Stub diarization", "bytes", len(body), "seconds", fmt.Sprintf("%.2f", seconds))

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"speakers": []map[string]any{
					{"speaker_id": "SPEAKER_00", "start": 0.0, "end": half},
					{"speaker_id": "SPEAKER_01", "start": half, "end": seconds},
				},
				"numSpeakers": 2,
			},
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Stub engine listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Stub engine failed", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
