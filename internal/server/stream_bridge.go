package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	apperrors "github.com/NAinfini/guildhall/internal/errors"
	"github.com/NAinfini/guildhall/internal/metrics"
	"github.com/NAinfini/guildhall/internal/push"
)

const bridgeBufferSize = 64

// streamBridge relays one coordinator session to one SSE response. It owns
// both ends: the internal coordinator session (a push.Session with a
// synthetic identity) and the outward HTTP stream. Teardown is idempotent
// and reachable from client abort, coordinator close, and lifetime expiry.
type streamBridge struct {
	coordinator *push.Coordinator
	transport   *push.ChanTransport
	session     push.Session
	entities    map[string]struct{}
	keepAlive   time.Duration
	maxLifetime time.Duration
	clock       clockwork.Clock
	closeOnce   sync.Once
}

func (s *Server) handleSSE(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		return rejectConnection(c, reason)
	}
	defer s.limits.Release(ip)

	entities := parseEntities(c.QueryParam("entities"), s.config.DefaultEntities)

	// Open the internal coordinator session before any stream bytes are
	// written, so a failure here still surfaces as a clean server error.
	transport := push.NewChanTransport(bridgeBufferSize)
	identity := "sse-bridge-" + uuid.NewString()[:8]
	sess, err := s.coordinator.Connect(c.Request().Context(), identity, transport)
	if err != nil {
		return apperrors.ExternalError("failed to open push session", err)
	}
	s.coordinator.Subscribe(sess.ID, entities)

	bridge := &streamBridge{
		coordinator: s.coordinator,
		transport:   transport,
		session:     sess,
		entities:    entitySet(entities),
		keepAlive:   s.config.SSEKeepAliveInterval,
		maxLifetime: s.config.SSEMaxLifetime,
		clock:       s.clock,
	}
	defer bridge.teardown()

	metrics.SSEBridgesTotal.Inc()
	metrics.SSEBridgesCurrent.Inc()
	defer metrics.SSEBridgesCurrent.Dec()

	return bridge.run(c)
}

func (b *streamBridge) run(c echo.Context) error {
	resp := c.Response()
	header := resp.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no") // disable buffering in intermediary proxies
	resp.WriteHeader(200)
	resp.Flush()

	keepAlive := b.clock.NewTicker(b.keepAlive)
	defer keepAlive.Stop()

	// Absolute lifetime, deliberately not reset by traffic: the client is
	// forced to reconnect rather than pin this bridge forever.
	lifetime := b.clock.NewTimer(b.maxLifetime)
	defer lifetime.Stop()

	ctx := c.Request().Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lifetime.Chan():
			metrics.SSEBridgeLifetimeExpiries.Inc()
			slog.Debug("SSE bridge lifetime expired", "session_id", b.session.ID)
			return nil
		case <-b.transport.Done():
			// Coordinator-initiated close (shutdown or eviction).
			return nil
		case frame := <-b.transport.Frames():
			if !b.matches(frame) {
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", frame); err != nil {
				return nil
			}
			resp.Flush()
			metrics.SSEFramesForwarded.Inc()
		case <-keepAlive.Chan():
			// Comment line defeats idle-connection timeouts in proxies.
			if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

// matches reports whether a coordinator frame names one of the requested
// entities. Control frames (welcome, echo) carry no entity and never reach
// the SSE stream.
func (b *streamBridge) matches(frame []byte) bool {
	var probe struct {
		Entity string `json:"entity"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil || probe.Entity == "" {
		return false
	}
	_, ok := b.entities[probe.Entity]
	return ok
}

// teardown releases both ends of the bridge exactly once. The transport
// Close is itself idempotent, so a racing coordinator-side close is harmless.
func (b *streamBridge) teardown() {
	b.closeOnce.Do(func() {
		b.coordinator.Disconnect(b.session.ID)
		b.transport.Close("bridge closed")
	})
}

func parseEntities(raw string, defaults []string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

func entitySet(entities []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		set[entity] = struct{}{}
	}
	return set
}
