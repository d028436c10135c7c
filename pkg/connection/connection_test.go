// Copyright 2025 OneCore Project

package connection

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// pipeConn is an in-memory wsConn: writes to one end arrive as reads on
// the other, letting tests exercise Connection/Multiplexer without a real
// socket.
type pipeConn struct {
	mu     sync.Mutex
	cond   *sync.Cond
	peer   *pipeConn
	toPeer [][]byte
	closed bool
}

func newPipePair() (*pipeConn, *pipeConn) {
	a := &pipeConn{}
	b := &pipeConn{}
	a.cond = sync.NewCond(&a.mu)
	b.cond = sync.NewCond(&b.mu)
	a.peer, b.peer = b, a
	return a, b
}

func (c *pipeConn) WriteMessage(messageType int, data []byte) error {
	peer := c.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return ErrClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	peer.toPeer = append(peer.toPeer, cp)
	peer.cond.Signal()
	return nil
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.toPeer) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed && len(c.toPeer) == 0 {
		return 0, nil, ErrClosed
	}
	msg := c.toPeer[0]
	c.toPeer = c.toPeer[1:]
	return TextMessage, msg, nil
}

func (c *pipeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

func (c *pipeConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *pipeConn) SetPongHandler(h func(string) error) {}

func TestSendReceiveRoundTrip(t *testing.T) {
	a, b := newPipePair()
	connA := New(a)
	connB := New(b)
	defer connA.Close()
	defer connB.Close()

	raw, _ := encodeValue("hello")
	if err := connA.Send(Frame{Tag: TagData, ID: 1, Data: raw}); err != nil {
		t.Fatalf("send: %v", err)
	}

	frame, err := connB.WaitForMessage(time.Second, func(f Frame) bool { return f.ID == 1 })
	if err != nil {
		t.Fatalf("wait for message: %v", err)
	}
	var got string
	if err := json.Unmarshal(frame.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestWaitForMessageTimesOut(t *testing.T) {
	a, b := newPipePair()
	connA := New(a)
	connB := New(b)
	defer connA.Close()
	defer connB.Close()

	_, err := connB.WaitForMessage(20*time.Millisecond, func(f Frame) bool { return false })
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestReceiveAfterCloseReturnsErrClosed(t *testing.T) {
	a, b := newPipePair()
	connA := New(a)
	connB := New(b)
	connA.Close()
	connB.Close()

	if _, err := connB.Receive(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestEncodeValueRejectsNaN(t *testing.T) {
	if _, err := encodeValue(map[string]any{"v": mathNaN()}); err == nil {
		t.Error("expected error encoding NaN")
	}
}

func TestIsUndefinedRoundTrips(t *testing.T) {
	raw, err := encodeValue(Undefined)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !IsUndefined(raw) {
		t.Error("expected IsUndefined to recognize the sentinel")
	}
	ordinary, _ := json.Marshal(42)
	if IsUndefined(ordinary) {
		t.Error("ordinary value should not be recognized as undefined")
	}
}

func mathNaN() float64 {
	var zero float64
	return zero / zero
}
