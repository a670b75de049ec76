package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/NAinfini/guildhall/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// WSTransport delivers frames over a gorilla WebSocket connection. A single
// writer goroutine owns all writes to the connection; Send and Ping only
// enqueue. When a write fails the goroutine exits and every later Send or
// Ping reports ErrTransportClosed, which is how the coordinator learns the
// session is gone.
type WSTransport struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	pingChannel chan struct{}
	doneChannel chan struct{}
	dead        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

var _ Transport = (*WSTransport)(nil)

func NewWSTransport(connection *websocket.Conn, clock clockwork.Clock) *WSTransport {
	t := &WSTransport{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		pingChannel: make(chan struct{}, 1),
		doneChannel: make(chan struct{}),
		dead:        make(chan struct{}),
	}
	t.configurePongHandler()
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *WSTransport) run() {
	defer t.wg.Done()
	defer close(t.dead)

	for {
		select {
		case msg := <-t.sendChannel:
			start := t.clock.Now()
			t.updateWriteDeadline()
			if err := t.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(t.clock.Since(start).Seconds())
		case <-t.pingChannel:
			t.updateWriteDeadline()
			if err := t.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-t.doneChannel:
			return
		}
	}
}

func (t *WSTransport) Send(frame []byte) error {
	select {
	case <-t.dead:
		return ErrTransportClosed
	case <-t.doneChannel:
		return ErrTransportClosed
	default:
	}

	select {
	case t.sendChannel <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (t *WSTransport) Ping() error {
	select {
	case <-t.dead:
		return ErrTransportClosed
	case <-t.doneChannel:
		return ErrTransportClosed
	default:
	}

	// A ping already queued is probe enough.
	select {
	case t.pingChannel <- struct{}{}:
	default:
	}
	return nil
}

// Close signals the writer goroutine to exit, sends a best-effort close frame
// with the given reason, and closes the underlying connection.
func (t *WSTransport) Close(reason string) {
	t.stopOnce.Do(func() {
		close(t.doneChannel)

		// Wait for the writer to exit so the close frame is not a
		// concurrent write.
		t.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		t.updateWriteDeadline()
		_ = t.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = t.connection.Close()
	})
}

func (t *WSTransport) configurePongHandler() {
	t.updateReadDeadline()
	t.connection.SetPongHandler(func(string) error {
		t.updateReadDeadline()
		return nil
	})
}

func (t *WSTransport) updateWriteDeadline() {
	_ = t.connection.SetWriteDeadline(t.clock.Now().Add(writeDeadline))
}

func (t *WSTransport) updateReadDeadline() {
	_ = t.connection.SetReadDeadline(t.clock.Now().Add(pongDeadline))
}
