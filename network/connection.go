// network/connection.go
package network

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is one client's duplex message channel.
type Connection interface {
	Send(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
	IsOpen() bool
	RemoteAddr() net.Addr
}

// Options tune a websocket connection.
type Options struct {
	SendBuffer int
	ReadLimit  int64
	PongWait   time.Duration
	WriteWait  time.Duration
}

// DefaultOptions mirrors the defaults of the config package.
func DefaultOptions() Options {
	return Options{
		SendBuffer: 64,
		ReadLimit:  64 * 1024,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
	}
}

// WSConnection adapts a gorilla connection. Outbound frames go through a
// bounded queue drained by a single writer goroutine, so Send never blocks.
type WSConnection struct {
	conn      *websocket.Conn
	opts      Options
	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewWSConnection(conn *websocket.Conn, opts Options) *WSConnection {
	def := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}

	c := &WSConnection{
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}

	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.writeLoop()
	return c
}

// Send queues a text frame. It fails fast when the peer is gone or slow.
func (c *WSConnection) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadMessage blocks for the next inbound frame.
func (c *WSConnection) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	return data, nil
}

func (c *WSConnection) writeLoop() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// IsOpen reports whether the connection can still carry frames.
func (c *WSConnection) IsOpen() bool {
	return !c.closed.Load()
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
