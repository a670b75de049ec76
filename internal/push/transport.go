package push

import "errors"

var (
	// ErrTransportClosed is returned by Send and Ping once a transport is dead.
	ErrTransportClosed = errors.New("transport closed")
	// ErrSlowConsumer is returned when a transport's send buffer is full.
	ErrSlowConsumer = errors.New("transport send buffer full")
)

// Transport is one session's outbound delivery channel. The coordinator
// treats any Send or Ping error as a dead connection and removes the session.
type Transport interface {
	// Send enqueues one frame for delivery. It must not block.
	Send(frame []byte) error

	// Ping probes liveness; used by the periodic cleanup sweep to reclaim
	// half-closed connections.
	Ping() error

	// Close releases the transport. Idempotent; safe from any goroutine.
	Close(reason string)
}
