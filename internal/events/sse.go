package events

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EncodeSSE renders an event as a server-sent-events data frame:
// "data: <json>\n\n".
func EncodeSSE(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// WriteSSE writes an event to w as an SSE frame and flushes when the
// writer supports it, so consumers see events as they happen rather
// than on buffer boundaries.
func WriteSSE(w io.Writer, e Event) error {
	frame, err := EncodeSSE(e)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
