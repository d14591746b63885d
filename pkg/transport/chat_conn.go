package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sendBufferFrames bounds how many outbound frames may queue before a
// send blocks, which is how backpressure (§5) reaches node execution: once
// the buffer is full, Send blocks until the writePump drains it or the
// caller's context (the node timeout) expires.
const sendBufferFrames = 32

// ErrConnClosed is returned by Send once the connection has been closed.
var ErrConnClosed = errors.New("transport: connection closed")

// chatConn wraps a gorilla/websocket connection with a single writer
// goroutine so every outbound frame for a session is written in
// production order (§4.J), a bounded outbound queue that applies
// backpressure to callers, and an idle-keepalive ticker that emits a
// native WebSocket ping control frame after idlePing of outbound
// inactivity. Grounded on the teacher's a2a server's
// conn.WriteJSON/conn.ReadJSON usage, generalized into a queued writer so
// concurrent producers (node events, the idle pinger) never interleave
// partial writes on the same socket.
type chatConn struct {
	ws  *websocket.Conn
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newChatConn(ws *websocket.Conn, maxFrameBytes int64) *chatConn {
	ws.SetReadLimit(maxFrameBytes)
	return &chatConn{
		ws:     ws,
		out:    make(chan []byte, sendBufferFrames),
		closed: make(chan struct{}),
	}
}

// Send enqueues frame for writing, blocking if the outbound buffer is
// full until room frees up or ctx is done.
func (c *chatConn) Send(ctx context.Context, frame ServerFrame) error {
	data, err := frame.marshal()
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine and closes the underlying socket.
func (c *chatConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// writePump drains the outbound queue onto the socket one frame at a
// time and emits a native WebSocket ping every idlePing of silence,
// satisfying §6's "ping/pong occur at least every 30 seconds of
// idleness" at the transport level regardless of chat traffic.
func (c *chatConn) writePump(idlePing time.Duration) {
	ticker := time.NewTicker(idlePing)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				return
			}
			ticker.Reset(idlePing)
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
