package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/NAinfini/guildhall/internal/metrics"
)

const (
	// Performance-critical constants, coordinated with the store's circuit
	// breaker thresholds.
	storeTimeout   = 2 * time.Second
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second

	commandBufferSize = 256

	// failOpenRemaining is the sentinel remaining count reported when a
	// storage fault forces the rate limiter to fail open.
	failOpenRemaining = 999999
)

// Session is the caller-facing handle for a registered connection.
type Session struct {
	ID       string
	Identity string
}

// session is the coordinator-owned registry record. An empty entity filter
// means wildcard: the session receives every entity's broadcasts.
type session struct {
	id        string
	identity  string
	transport Transport
	entities  map[string]struct{}
}

// wants reports whether a broadcast for entity passes this session's filter.
func (s *session) wants(entity string) bool {
	if len(s.entities) == 0 {
		return true
	}
	_, ok := s.entities[entity]
	return ok
}

// coordinatorCmd is the command interface for the Coordinator actor.
type coordinatorCmd interface{ isCoordinatorCmd() }

type baseCoordinatorCmd struct{}

func (baseCoordinatorCmd) isCoordinatorCmd() {}

type connectCmd struct {
	baseCoordinatorCmd
	identity     string
	transport    Transport
	replyChannel chan connectResult
}

type connectResult struct {
	session Session
	err     error
}

type disconnectCmd struct {
	baseCoordinatorCmd
	sessionID string
}

type subscribeCmd struct {
	baseCoordinatorCmd
	sessionID string
	entities  []string
}

type broadcastCmd struct {
	baseCoordinatorCmd
	envelope     Envelope
	replyChannel chan broadcastResult
}

type broadcastResult struct {
	sent int
	err  error
}

type rateLimitCmd struct {
	baseCoordinatorCmd
	key          string
	maxRequests  int64
	window       time.Duration
	replyChannel chan RateLimitResult
}

type seqsCmd struct {
	baseCoordinatorCmd
	replyChannel chan seqsResult
}

type seqsResult struct {
	seqs map[string]uint64
	err  error
}

type sessionCountCmd struct {
	baseCoordinatorCmd
	replyChannel chan int
}

type stopCmd struct {
	baseCoordinatorCmd
}

// Coordinator is the single actor owning the session registry, the sequence
// table, and the rate-limit ledger. All mutations flow through its command
// channel and are processed by one goroutine, which is what guarantees
// gap-free, totally-ordered sequencing per entity.
type Coordinator struct {
	cmdCh           chan coordinatorCmd
	clock           clockwork.Clock
	store           Store
	sessions        map[string]*session
	cleanupInterval time.Duration
	done            chan struct{}
}

// NewCoordinator creates and starts a coordinator.
// store persists sequence counters and rate-limit records across restarts.
// cleanupInterval controls the periodic sweep that reclaims expired rate
// records and half-closed sessions.
func NewCoordinator(store Store, clock clockwork.Clock, cleanupInterval time.Duration) *Coordinator {
	c := &Coordinator{
		cmdCh:           make(chan coordinatorCmd, commandBufferSize),
		clock:           clock,
		store:           store,
		sessions:        make(map[string]*session),
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
	}
	go c.run()
	return c
}

// Connect registers a transport as a tracked session with a wildcard filter
// and sends the welcome frame carrying every known entity's current sequence
// number. On failure the transport is closed and no session is registered.
func (c *Coordinator) Connect(ctx context.Context, identity string, transport Transport) (Session, error) {
	replyCh := make(chan connectResult, 1)
	cmd := connectCmd{identity: identity, transport: transport, replyChannel: replyCh}

	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.session, res.err
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case <-timer.Chan():
		return Session{}, fmt.Errorf("connect command timed out after %v", commandTimeout)
	}
}

// Subscribe replaces the session's entity filter. An empty slice restores
// wildcard semantics. Fire-and-forget: an unknown session ID is ignored.
func (c *Coordinator) Subscribe(sessionID string, entities []string) {
	c.cmdCh <- subscribeCmd{sessionID: sessionID, entities: entities}
}

// Disconnect removes a session from the registry and closes its transport.
func (c *Coordinator) Disconnect(sessionID string) {
	c.cmdCh <- disconnectCmd{sessionID: sessionID}
}

// Broadcast assigns the envelope's sequence number (when it names an entity),
// then delivers it to every matching session except ones belonging to the
// excluded actor. Sessions whose transport write fails are removed; delivery
// to the remaining sessions continues. Returns the successful delivery count.
//
// An error means the sequence number could not be assigned and nothing was
// delivered; callers must treat the broadcast as best-effort and not retry.
func (c *Coordinator) Broadcast(ctx context.Context, envelope Envelope) (int, error) {
	replyCh := make(chan broadcastResult, 1)
	cmd := broadcastCmd{envelope: envelope, replyChannel: replyCh}

	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.sent, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.Chan():
		return 0, fmt.Errorf("broadcast command timed out after %v", commandTimeout)
	}
}

// RateLimit performs a fixed-window check-and-increment for key.
// maxRequests=0 always denies. A storage fault fails open: the check allows
// with a large sentinel remaining count so a transient coordinator fault
// never blocks a protected operation.
func (c *Coordinator) RateLimit(ctx context.Context, key string, maxRequests int64, window time.Duration) (RateLimitResult, error) {
	replyCh := make(chan RateLimitResult, 1)
	cmd := rateLimitCmd{key: key, maxRequests: maxRequests, window: window, replyChannel: replyCh}

	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return RateLimitResult{}, ctx.Err()
	}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res, nil
	case <-ctx.Done():
		return RateLimitResult{}, ctx.Err()
	case <-timer.Chan():
		return RateLimitResult{}, fmt.Errorf("rate limit command timed out after %v", commandTimeout)
	}
}

// Seqs returns every known entity's current sequence number, for reconnect
// reconciliation.
func (c *Coordinator) Seqs(ctx context.Context) (map[string]uint64, error) {
	replyCh := make(chan seqsResult, 1)

	select {
	case c.cmdCh <- seqsCmd{replyChannel: replyCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		return res.seqs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.Chan():
		return nil, fmt.Errorf("seqs command timed out after %v", commandTimeout)
	}
}

// SessionCount returns the number of registered sessions.
// Returns -1 if the command times out.
func (c *Coordinator) SessionCount() int {
	replyCh := make(chan int, 1)
	c.cmdCh <- sessionCountCmd{replyChannel: replyCh}

	timer := c.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("SessionCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the coordinator, closing every session's transport.
// Blocks until the coordinator goroutine has exited or the grace period ends.
func (c *Coordinator) Stop() {
	c.cmdCh <- stopCmd{}

	timer := c.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		slog.Info("Coordinator stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Coordinator stop timeout exceeded", "timeout", stopTimeout)
		metrics.CoordinatorStopTimeoutsTotal.Inc()
	}
}

func (c *Coordinator) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Coordinator panic recovered", "panic", r)
			metrics.CoordinatorPanicsTotal.Inc()
			c.closeAllSessions("coordinator panic")
		}
	}()

	ticker := c.clock.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case cmd := <-c.cmdCh:
			metrics.CoordinatorCommandChannelDepth.Set(float64(len(c.cmdCh)))
			switch cmd := cmd.(type) {
			case connectCmd:
				c.handleConnect(cmd)
			case disconnectCmd:
				c.removeSession(cmd.sessionID, "disconnected")
			case subscribeCmd:
				c.handleSubscribe(cmd)
			case broadcastCmd:
				c.handleBroadcast(cmd)
			case rateLimitCmd:
				cmd.replyChannel <- c.checkRateLimit(cmd.key, cmd.maxRequests, cmd.window)
			case seqsCmd:
				seqs, err := c.readSeqs()
				cmd.replyChannel <- seqsResult{seqs: seqs, err: err}
			case sessionCountCmd:
				cmd.replyChannel <- len(c.sessions)
			case stopCmd:
				c.handleStop()
				return
			default:
				slog.Warn("Coordinator received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			c.handleCleanup()
		}
	}
}

func (c *Coordinator) handleConnect(cmd connectCmd) {
	id := uuid.NewString()

	seqs, err := c.readSeqs()
	if err != nil {
		// Degraded welcome: the client reconciles via GET /seq instead.
		slog.Warn("Failed to read sequence table for welcome frame", "error", err)
		seqs = make(map[string]uint64)
	}

	frame, err := json.Marshal(welcomeFrame{Type: "welcome", Data: welcomeData{SessionID: id, Seqs: seqs}})
	if err != nil {
		cmd.transport.Close("welcome frame failed")
		cmd.replyChannel <- connectResult{err: fmt.Errorf("marshal welcome frame: %w", err)}
		return
	}

	if err := cmd.transport.Send(frame); err != nil {
		cmd.transport.Close("welcome delivery failed")
		cmd.replyChannel <- connectResult{err: fmt.Errorf("send welcome frame: %w", err)}
		return
	}

	c.sessions[id] = &session{id: id, identity: cmd.identity, transport: cmd.transport}
	metrics.CoordinatorActiveSessions.Set(float64(len(c.sessions)))

	slog.Debug("Session connected", "session_id", id, "identity", cmd.identity, "total_sessions", len(c.sessions))
	cmd.replyChannel <- connectResult{session: Session{ID: id, Identity: cmd.identity}}
}

func (c *Coordinator) handleSubscribe(cmd subscribeCmd) {
	sess, exists := c.sessions[cmd.sessionID]
	if !exists {
		slog.Debug("Subscribe for unknown session", "session_id", cmd.sessionID)
		return
	}

	if len(cmd.entities) == 0 {
		sess.entities = nil
		slog.Debug("Session filter reset to wildcard", "session_id", sess.id)
		return
	}

	filter := make(map[string]struct{}, len(cmd.entities))
	for _, entity := range cmd.entities {
		filter[entity] = struct{}{}
	}
	sess.entities = filter
	slog.Debug("Session filter replaced", "session_id", sess.id, "entities", cmd.entities)
}

func (c *Coordinator) handleBroadcast(cmd broadcastCmd) {
	start := c.clock.Now()
	envelope := cmd.envelope

	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = c.clock.Now().UTC()
	}

	if envelope.Entity != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		seq, err := c.store.NextSeq(ctx, envelope.Entity)
		cancel()
		if err != nil {
			cmd.replyChannel <- broadcastResult{err: fmt.Errorf("assign sequence for %q: %w", envelope.Entity, err)}
			return
		}
		envelope.Seq = seq
	}

	frame, err := json.Marshal(envelope)
	if err != nil {
		cmd.replyChannel <- broadcastResult{err: fmt.Errorf("marshal envelope: %w", err)}
		return
	}

	sent := 0
	var failed []string
	for _, sess := range c.sessions {
		if envelope.ExcludeActorID != "" &&
			(sess.identity == envelope.ExcludeActorID || sess.id == envelope.ExcludeActorID) {
			continue
		}
		if !sess.wants(envelope.Entity) {
			continue
		}
		if err := sess.transport.Send(frame); err != nil {
			failed = append(failed, sess.id)
			continue
		}
		sent++
	}

	// Failed writes mean the connection is gone; reclaim without aborting
	// delivery to anyone else.
	for _, id := range failed {
		metrics.CoordinatorDeliveryFailuresTotal.Inc()
		c.removeSession(id, "write failed")
	}

	metrics.CoordinatorBroadcastsTotal.WithLabelValues(envelope.Entity).Inc()
	metrics.CoordinatorDeliveriesTotal.Add(float64(sent))
	metrics.CoordinatorBroadcastDuration.Observe(c.clock.Since(start).Seconds())

	cmd.replyChannel <- broadcastResult{sent: sent}
}

func (c *Coordinator) checkRateLimit(key string, maxRequests int64, window time.Duration) RateLimitResult {
	now := c.clock.Now()

	// Fail closed for disabled keys, before any storage round trip.
	if maxRequests <= 0 {
		metrics.RateLimitChecksTotal.WithLabelValues("denied").Inc()
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: now.Add(window).UnixMilli()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rec, err := c.store.GetRateRecord(ctx, key)
	if err != nil {
		return c.rateLimitFailOpen(key, now, window, err)
	}

	if rec == nil || now.After(rec.WindowResetAt) {
		fresh := RateRecord{Key: key, Count: 1, WindowResetAt: now.Add(window)}
		if err := c.store.PutRateRecord(ctx, fresh); err != nil {
			return c.rateLimitFailOpen(key, now, window, err)
		}
		metrics.RateLimitChecksTotal.WithLabelValues("allowed").Inc()
		return RateLimitResult{Allowed: true, Remaining: maxRequests - 1, ResetAt: fresh.WindowResetAt.UnixMilli()}
	}

	if rec.Count >= maxRequests {
		metrics.RateLimitChecksTotal.WithLabelValues("denied").Inc()
		return RateLimitResult{Allowed: false, Remaining: 0, ResetAt: rec.WindowResetAt.UnixMilli()}
	}

	rec.Count++
	if err := c.store.PutRateRecord(ctx, *rec); err != nil {
		return c.rateLimitFailOpen(key, now, window, err)
	}
	metrics.RateLimitChecksTotal.WithLabelValues("allowed").Inc()
	return RateLimitResult{Allowed: true, Remaining: maxRequests - rec.Count, ResetAt: rec.WindowResetAt.UnixMilli()}
}

// rateLimitFailOpen converts a storage fault into an allow. Availability of
// the protected operation wins over strict quota enforcement here; see the
// explicit ErrStoreUnavailable branch rather than a catch-all swallow.
func (c *Coordinator) rateLimitFailOpen(key string, now time.Time, window time.Duration, err error) RateLimitResult {
	if errors.Is(err, ErrStoreUnavailable) {
		slog.Warn("Rate limit store unavailable, failing open", "key", key, "error", err)
	} else {
		slog.Error("Unexpected rate limit store error, failing open", "key", key, "error", err)
	}
	metrics.RateLimitChecksTotal.WithLabelValues("fail_open").Inc()
	return RateLimitResult{Allowed: true, Remaining: failOpenRemaining, ResetAt: now.Add(window).UnixMilli()}
}

func (c *Coordinator) readSeqs() (map[string]uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return c.store.Seqs(ctx)
}

func (c *Coordinator) handleCleanup() {
	now := c.clock.Now()
	metrics.CleanupRunsTotal.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	deleted, err := c.store.DeleteExpiredRateRecords(ctx, now)
	cancel()
	if err != nil {
		slog.Warn("Failed to delete expired rate limit records", "error", err)
	} else if deleted > 0 {
		metrics.RateLimitRecordsExpired.Add(float64(deleted))
		slog.Debug("Expired rate limit records deleted", "count", deleted)
	}

	var stale []string
	for id, sess := range c.sessions {
		if err := sess.transport.Ping(); err != nil {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		metrics.CleanupReapedSessionsTotal.Inc()
		c.removeSession(id, "ping failed")
	}
}

func (c *Coordinator) removeSession(id, reason string) {
	sess, exists := c.sessions[id]
	if !exists {
		return
	}

	sess.transport.Close(reason)
	delete(c.sessions, id)
	metrics.CoordinatorActiveSessions.Set(float64(len(c.sessions)))
	slog.Debug("Session removed", "session_id", id, "reason", reason, "remaining_sessions", len(c.sessions))
}

func (c *Coordinator) handleStop() {
	slog.Info("Coordinator shutting down", "sessions", len(c.sessions))
	c.closeAllSessions("Server shutting down")
}

func (c *Coordinator) closeAllSessions(reason string) {
	for id, sess := range c.sessions {
		sess.transport.Close(reason)
		delete(c.sessions, id)
	}
	metrics.CoordinatorActiveSessions.Set(0)
}
