package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event names sent on the optimization stream.
const (
	EventProgress = "progress"
	EventStep     = "step"
	EventComplete = "complete"
	EventError    = "error"
)

// errStreamClosed is returned for writes after the terminal event.
var errStreamClosed = errors.New("event stream already finished")

// SSEWriter writes Server-Sent Events with increasing ids. It is safe for concurrent use; the
// stream is finished by WriteComplete or WriteError.
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
	closed  bool
}

// NewSSEWriter sets the event-stream headers. It fails when w cannot flush.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends one named event with a JSON payload.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Heartbeat writes a comment line every interval until ctx is done or the stream finishes,
// keeping proxies from timing out during long model calls.
func (s *SSEWriter) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			_, err := fmt.Fprint(s.w, ": keep-alive\n\n")
			if err == nil {
				s.flusher.Flush()
			}
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// WriteError sends the error event and finishes the stream.
func (s *SSEWriter) WriteError(err error) {
	s.finish(EventError, errorBody(err))
}

// WriteComplete sends the completion event carrying the full result and finishes the stream.
func (s *SSEWriter) WriteComplete(result any) {
	s.finish(EventComplete, result)
}

func (s *SSEWriter) finish(event string, data any) {
	s.WriteEvent(event, data) //nolint:errcheck
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
