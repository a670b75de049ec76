package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NAinfini/guildhall/internal/config"
	"github.com/NAinfini/guildhall/internal/push"
)

func sseConfig() *config.Config {
	cfg := testConfig()
	cfg.SSEKeepAliveInterval = 20 * time.Millisecond
	cfg.SSEMaxLifetime = 500 * time.Millisecond
	return cfg
}

// openStream starts an SSE request and waits until the bridge session is
// registered with the coordinator.
func openStream(t *testing.T, h *testHarness, query string) *http.Response {
	t.Helper()
	resp, err := http.Get(h.http.URL + "/api/push" + query)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.coordinator.SessionCount() >= 1 {
			return resp
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("bridge session never registered")
	return nil
}

// sseEvents extracts the data payloads from a complete SSE body.
func sseEvents(body string) []string {
	var out []string
	for line := range strings.Lines(body) {
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			out = append(out, strings.TrimRight(rest, "\n"))
		}
	}
	return out
}

func TestSSE_StreamHeadersAndLifetime(t *testing.T) {
	h := newTestHarness(t, sseConfig())

	start := time.Now()
	resp := openStream(t, h, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond, "stream closed before max lifetime")
	assert.Less(t, elapsed, 5*time.Second, "stream outlived max lifetime")
	assert.Contains(t, string(body), ": keep-alive\n\n")
}

func TestSSE_ForwardsOnlyRequestedEntities(t *testing.T) {
	h := newTestHarness(t, sseConfig())
	resp := openStream(t, h, "?entities=wars")

	ctx := context.Background()
	_, err := h.coordinator.Broadcast(ctx, push.Envelope{Entity: "wars", Action: "update"})
	require.NoError(t, err)
	_, err = h.coordinator.Broadcast(ctx, push.Envelope{Entity: "events", Action: "update"})
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	events := sseEvents(string(body))
	require.Len(t, events, 1)

	var env push.Envelope
	require.NoError(t, json.Unmarshal([]byte(events[0]), &env))
	assert.Equal(t, "wars", env.Entity)
	assert.Equal(t, uint64(1), env.Seq)
}

func TestSSE_DefaultEntitiesWhenUnspecified(t *testing.T) {
	h := newTestHarness(t, sseConfig())
	resp := openStream(t, h, "")

	ctx := context.Background()
	_, err := h.coordinator.Broadcast(ctx, push.Envelope{Entity: "gallery", Action: "create"})
	require.NoError(t, err)
	_, err = h.coordinator.Broadcast(ctx, push.Envelope{Entity: "unrelated", Action: "create"})
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	events := sseEvents(string(body))
	require.Len(t, events, 1, "only the default entity set is forwarded")

	var env push.Envelope
	require.NoError(t, json.Unmarshal([]byte(events[0]), &env))
	assert.Equal(t, "gallery", env.Entity)
}

func TestSSE_WelcomeFrameNotForwarded(t *testing.T) {
	h := newTestHarness(t, sseConfig())
	resp := openStream(t, h, "?entities=wars")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.NotContains(t, string(body), "welcome", "control frames stay internal to the bridge")
}

func TestSSE_BridgeSessionRemovedOnClientDisconnect(t *testing.T) {
	h := newTestHarness(t, sseConfig())
	resp := openStream(t, h, "?entities=wars")

	require.NoError(t, resp.Body.Close())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.coordinator.SessionCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("bridge session not removed after client disconnect")
}

func TestParseEntities(t *testing.T) {
	defaults := []string{"events", "wars"}

	assert.Equal(t, []string{"wars"}, parseEntities("wars", defaults))
	assert.Equal(t, []string{"wars", "members"}, parseEntities(" wars , members ", defaults))
	assert.Equal(t, defaults, parseEntities("", defaults))
	assert.Equal(t, defaults, parseEntities(" , ", defaults))
}
