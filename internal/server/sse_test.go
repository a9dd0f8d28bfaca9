package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_EventsAreNumbered(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, sse.WriteEvent(EventProgress, map[string]int{"step": 1}))
	sse.WriteComplete(map[string]string{"termination": "target_reached"})

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "id: 1\nevent: progress\ndata: {\"step\":1}\n\n"+
		"id: 2\nevent: complete\ndata: {\"termination\":\"target_reached\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSEWriter_ClosedAfterTerminalEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	sse.WriteError(errors.New("provider down"))
	assert.ErrorIs(t, sse.WriteEvent(EventStep, 1), errStreamClosed)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "event: "))
	assert.Contains(t, rec.Body.String(), "event: error")
}

func TestSSEWriter_Heartbeat(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	sse.Heartbeat(ctx, time.Millisecond)

	assert.Contains(t, rec.Body.String(), ": keep-alive\n\n")

	sse.WriteComplete(nil)
	before := rec.Body.Len()
	sse.Heartbeat(context.Background(), time.Millisecond)
	assert.Equal(t, before, rec.Body.Len())
}
