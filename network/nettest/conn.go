// Package nettest provides an in-memory network.Connection for tests.
package nettest

import (
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
)

// Conn records every frame sent to it.
type Conn struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	SendErr  error
	CloseErr error
}

func NewConn() *Conn {
	return &Conn{}
}

func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return network.ErrConnectionClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *Conn) ReadMessage() ([]byte, error) {
	return nil, errors.New("nettest: read not supported")
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) RemoteAddr() net.Addr { return &net.TCPAddr{} }

// Envelopes decodes every recorded frame.
func (c *Conn) Envelopes() []network.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]network.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env network.Envelope
		if err := json.Unmarshal(f, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// Types lists the message types received, in order.
func (c *Conn) Types() []string {
	envs := c.Envelopes()
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

// Last returns the most recent envelope of msgType.
func (c *Conn) Last(msgType string) (network.Envelope, bool) {
	envs := c.Envelopes()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == msgType {
			return envs[i], true
		}
	}
	return network.Envelope{}, false
}

// Reset forgets recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
