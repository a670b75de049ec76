package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanTransport_SendAndReceive(t *testing.T) {
	transport := NewChanTransport(2)

	require.NoError(t, transport.Send([]byte("one")))
	require.NoError(t, transport.Send([]byte("two")))

	assert.Equal(t, []byte("one"), <-transport.Frames())
	assert.Equal(t, []byte("two"), <-transport.Frames())
}

func TestChanTransport_SlowConsumer(t *testing.T) {
	transport := NewChanTransport(1)

	require.NoError(t, transport.Send([]byte("fills the buffer")))
	err := transport.Send([]byte("overflows"))
	assert.ErrorIs(t, err, ErrSlowConsumer)
}

func TestChanTransport_CloseIsIdempotent(t *testing.T) {
	transport := NewChanTransport(1)

	transport.Close("first")
	transport.Close("second")

	select {
	case <-transport.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	assert.ErrorIs(t, transport.Send([]byte("late")), ErrTransportClosed)
	assert.ErrorIs(t, transport.Ping(), ErrTransportClosed)
}

func TestChanTransport_BufferedFramesReadableAfterClose(t *testing.T) {
	transport := NewChanTransport(2)
	require.NoError(t, transport.Send([]byte("buffered")))

	transport.Close("shutting down")

	assert.Equal(t, []byte("buffered"), <-transport.Frames())
}
