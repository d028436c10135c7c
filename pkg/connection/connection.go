// Copyright 2025 OneCore Project
//
// Package connection wraps a websocket transport (github.com/gorilla/websocket)
// in a small framed-message abstraction: a state machine, a read loop that
// decodes Frames off the wire, ping/pong keepalive, and a blocking
// WaitForMessage for request/response code built on top (spec.md §4.8,
// component C8). The request multiplexer lives in multiplexer.go.

package connection

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// wsConn is the subset of *websocket.Conn this package depends on, kept
// narrow so tests can substitute an in-memory fake. *websocket.Conn
// satisfies it without any adapter.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Message type constants mirror gorilla/websocket's, so callers building a
// real Connection don't need to import that package just for these.
const (
	TextMessage   = 1
	BinaryMessage = 2
	PingMessage   = 9
	PongMessage   = 10
)

// State is where a Connection sits in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one framed, keepalive-pinged websocket connection.
type Connection struct {
	conn   wsConn
	logger *log.Logger

	mu    sync.Mutex
	state State

	incoming  chan Frame
	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// New wraps conn, starting its read loop immediately. The connection
// begins in StateOpen: the websocket handshake is assumed already
// complete by the time a wsConn exists.
func New(conn wsConn) *Connection {
	c := &Connection{
		conn:     conn,
		logger:   log.New(os.Stderr, "[connection] ", log.LstdFlags),
		state:    StateOpen,
		incoming: make(chan Frame, 64),
		closeCh:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// WithLogger overrides the connection's logger.
func (c *Connection) WithLogger(logger *log.Logger) *Connection {
	c.logger = logger
	return c
}

// StartKeepalive pings the peer every interval and closes the connection
// if no pong arrives within timeout of the previous one (or of the start).
// Other inbound traffic does not extend the deadline.
func (c *Connection) StartKeepalive(interval, timeout time.Duration) {
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(timeout))
	})
	c.conn.SetReadDeadline(time.Now().Add(timeout))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.closeCh:
				return
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.conn.WriteMessage(PingMessage, nil)
				c.writeMu.Unlock()
				if err != nil {
					c.logger.Printf("keepalive ping failed: %v", err)
					c.Close()
					return
				}
			}
		}
	}()
}

func (c *Connection) readLoop() {
	defer close(c.incoming)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.Close()
			return
		}
		frame, err := decodeFrame(data)
		if err != nil {
			c.logger.Printf("dropping malformed frame: %v", err)
			continue
		}
		select {
		case c.incoming <- frame:
		case <-c.closeCh:
			return
		}
	}
}

// Send writes f to the wire as a single text message.
func (c *Connection) Send(f Frame) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	data, err := encodeFrame(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Receive blocks for the next inbound frame.
func (c *Connection) Receive() (Frame, error) {
	frame, ok := <-c.incoming
	if !ok {
		return Frame{}, ErrClosed
	}
	return frame, nil
}

// WaitForMessage blocks until match returns true for an inbound frame, or
// timeout elapses.
func (c *Connection) WaitForMessage(timeout time.Duration, match func(Frame) bool) (Frame, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case frame, ok := <-c.incoming:
			if !ok {
				return Frame{}, ErrClosed
			}
			if match(frame) {
				return frame, nil
			}
		case <-deadline.C:
			return Frame{}, ErrTimeout
		}
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close shuts the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
