// Copyright 2025 OneCore Project

package relay

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/onecore-dev/onecore/pkg/connection"
)

const (
	defaultSpareConnectionLimit = 3
	defaultReconnectTimeout     = 5 * time.Second
)

// Dialer opens one connection to the relay at url. Swappable in tests;
// connection.Dial is the production implementation.
type Dialer func(url string) (*connection.Connection, error)

// Client maintains a pool of spare connections to one relay endpoint, so a
// pairing or communication-initiation request can claim an already-open
// connection instead of paying handshake latency on the critical path
// (spec.md §4.9).
type Client struct {
	url    string
	dial   Dialer
	logger *log.Logger

	spareLimit       int
	reconnectTimeout time.Duration

	mu     sync.Mutex
	state  State
	spares []*connection.Connection
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a Client for url, using dial to open connections.
func NewClient(url string, dial Dialer) *Client {
	return &Client{
		url:              url,
		dial:             dial,
		logger:           log.New(os.Stderr, "[relay] ", log.LstdFlags),
		spareLimit:       defaultSpareConnectionLimit,
		reconnectTimeout: defaultReconnectTimeout,
		state:            NotListening,
	}
}

// WithLogger overrides the client's logger.
func (c *Client) WithLogger(logger *log.Logger) *Client {
	c.logger = logger
	return c
}

// WithSpareConnectionLimit overrides how many idle connections the pool
// keeps warm.
func (c *Client) WithSpareConnectionLimit(n int) *Client {
	c.spareLimit = n
	return c
}

// WithReconnectTimeout overrides the wait between failed dial attempts.
func (c *Client) WithReconnectTimeout(d time.Duration) *Client {
	c.reconnectTimeout = d
	return c
}

// State returns the client's current relay-connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start transitions the client into Connecting and begins filling the
// spare connection pool in the background. It dials the first connection
// synchronously and returns once that connection is established, or with
// the dial error if it fails.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.state != NotListening {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	first, err := c.dial(c.url)
	if err != nil {
		c.mu.Lock()
		c.state = NotListening
		c.mu.Unlock()
		return fmt.Errorf("connecting to relay %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.spares = append(c.spares, first)
	c.state = Listening
	c.mu.Unlock()

	c.wg.Add(1)
	go c.maintainPool()
	return nil
}

// Stop closes every pooled connection and halts pool maintenance.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == NotListening {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	spares := c.spares
	c.spares = nil
	c.state = NotListening
	c.mu.Unlock()

	for _, conn := range spares {
		conn.Close()
	}
	c.wg.Wait()
}

// Acquire claims one spare connection from the pool, dialing a fresh one
// if none is idle.
func (c *Client) Acquire() (*connection.Connection, error) {
	c.mu.Lock()
	if len(c.spares) > 0 {
		conn := c.spares[len(c.spares)-1]
		c.spares = c.spares[:len(c.spares)-1]
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	conn, err := c.dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	}
	return conn, nil
}

// Release returns an unused connection to the pool for reuse, or closes it
// if the pool is already at its limit.
func (c *Client) Release(conn *connection.Connection) {
	c.mu.Lock()
	keep := len(c.spares) < c.spareLimit && c.state == Listening
	if keep {
		c.spares = append(c.spares, conn)
	}
	c.mu.Unlock()

	if !keep {
		conn.Close()
	}
}

// maintainPool tops the spare pool back up to spareLimit whenever it drops
// below that, backing off by reconnectTimeout between failed attempts.
func (c *Client) maintainPool() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.reconnectTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.topUp()
		}
	}
}

func (c *Client) topUp() {
	c.mu.Lock()
	deficit := c.spareLimit - len(c.spares)
	c.mu.Unlock()

	for i := 0; i < deficit; i++ {
		conn, err := c.dial(c.url)
		if err != nil {
			c.logger.Printf("spare connection dial failed: %v", err)
			return
		}
		c.mu.Lock()
		c.spares = append(c.spares, conn)
		c.mu.Unlock()
	}
}
