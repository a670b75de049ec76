package push

import "sync"

// ChanTransport delivers frames into an in-process channel. The SSE bridge
// uses it for its internal coordinator session; tests use it as a determinate
// fake transport.
type ChanTransport struct {
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*ChanTransport)(nil)

func NewChanTransport(buffer int) *ChanTransport {
	return &ChanTransport{
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (t *ChanTransport) Send(frame []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.frames <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (t *ChanTransport) Ping() error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
		return nil
	}
}

func (t *ChanTransport) Close(string) {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

// Frames is the consumer side of the transport. Frames already buffered
// remain readable after Close.
func (t *ChanTransport) Frames() <-chan []byte {
	return t.frames
}

// Done is closed when the transport is closed by either end.
func (t *ChanTransport) Done() <-chan struct{} {
	return t.done
}
