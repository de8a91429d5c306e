package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 128
)

var errConnClosed = errors.New("connection closed")

// Conn wraps a websocket and coordinates outbound writes through a buffered
// channel with a single writer goroutine. Payloads enqueued by Send are
// delivered in enqueue order.
type Conn struct {
	ID     string
	UserID uuid.UUID
	Meta   ConnMeta

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// ConnMeta carries request-scoped identification attached at upgrade time,
// used for lifecycle events and audit payloads.
type ConnMeta struct {
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// NewConn constructs a Conn for the given user.
func NewConn(userID uuid.UUID, socket *websocket.Conn, meta ConnMeta) *Conn {
	return &Conn{
		ID:     newConnID(),
		UserID: userID,
		Meta:   meta,
		ws:     socket,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the write loop. Call exactly once per connection.
func (c *Conn) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A slow client that fills the buffer
// is closed to keep backpressure bounded.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("send buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// from any goroutine, any number of times.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.ws != nil {
			deadline := time.Now().Add(writeWait)
			_ = c.ws.SetWriteDeadline(deadline)
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
			_ = c.ws.Close()
		}
	})
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
