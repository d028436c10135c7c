// Copyright 2025 OneCore Project
//
// Multiplexer lets many concurrent request/response exchanges share one
// Connection, each tagged with a monotonic request id (spec.md §4.8). A
// request's response can be a single "data" frame, an "error" frame, or a
// "stream"/"stream-end" sequence (optionally aborted by "stream-error");
// Responder gives a registered Service a uniform way to send any of those.

package connection

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Service handles one incoming request for a registered service name.
// Implementations reply through r; exactly one terminal call (Data, End,
// or Error) must eventually happen.
type Service func(req json.RawMessage, r *Responder)

// Responder lets a Service send its reply, streamed or not.
type Responder struct {
	mux      *Multiplexer
	id       uint64
	streamed bool
}

// Data sends a single complete response and terminates the request.
func (r *Responder) Data(v any) error {
	raw, err := encodeValue(v)
	if err != nil {
		return err
	}
	return r.mux.conn.Send(Frame{Tag: TagData, ID: r.id, Data: raw})
}

// Stream sends one chunk of a multi-part response. The first call marks
// this request as streamed; End or Error must follow eventually.
func (r *Responder) Stream(v any) error {
	r.streamed = true
	raw, err := encodeValue(v)
	if err != nil {
		return err
	}
	return r.mux.conn.Send(Frame{Tag: TagStream, ID: r.id, Data: raw})
}

// End terminates a streamed response with no further chunks.
func (r *Responder) End() error {
	return r.mux.conn.Send(Frame{Tag: TagStreamEnd, ID: r.id})
}

// Error terminates the request with an error, using stream-error if any
// chunk already went out via Stream, error otherwise.
func (r *Responder) Error(err error) error {
	tag := TagError
	if r.streamed {
		tag = TagStreamError
	}
	raw, encErr := encodeValue(err.Error())
	if encErr != nil {
		return encErr
	}
	return r.mux.conn.Send(Frame{Tag: tag, ID: r.id, Data: raw})
}

// ResponseIterator delivers the frames of one outgoing request's response.
type ResponseIterator struct {
	frames chan Frame
	done   chan struct{}
	err    error
	mu     sync.Mutex
}

// Next blocks for the next response frame. It returns ok=false once the
// response has terminated (stream-end, data, error, or stream-error
// already delivered).
func (it *ResponseIterator) Next() (Frame, bool) {
	f, ok := <-it.frames
	return f, ok
}

// Err returns the error recorded by a terminal error/stream-error frame,
// if any, once iteration has completed.
func (it *ResponseIterator) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Multiplexer dispatches frames between registered local Services and
// pending outgoing requests over one Connection.
type Multiplexer struct {
	conn *Connection

	nextID uint64

	mu       sync.Mutex
	pending  map[uint64]*ResponseIterator
	services map[string]Service
}

// NewMultiplexer creates a Multiplexer over conn. Call Run in its own
// goroutine to start dispatching.
func NewMultiplexer(conn *Connection) *Multiplexer {
	return &Multiplexer{
		conn:     conn,
		pending:  make(map[uint64]*ResponseIterator),
		services: make(map[string]Service),
	}
}

// AddService registers svc under name. Re-registering an existing name
// returns ErrDuplicateService.
func (m *Multiplexer) AddService(name string, svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	m.services[name] = svc
	return nil
}

// RemoveService unregisters name, if present.
func (m *Multiplexer) RemoveService(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, name)
}

// Send issues a request to service on the peer, returning an iterator
// over its response frames.
func (m *Multiplexer) Send(service string, req any) (*ResponseIterator, error) {
	raw, err := encodeValue(req)
	if err != nil {
		return nil, err
	}
	id := atomic.AddUint64(&m.nextID, 1)

	it := &ResponseIterator{frames: make(chan Frame, 8), done: make(chan struct{})}
	m.mu.Lock()
	m.pending[id] = it
	m.mu.Unlock()

	if err := m.conn.Send(Frame{Tag: TagRequest, ID: id, Service: service, Data: raw}); err != nil {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, err
	}
	return it, nil
}

// Run reads frames off conn until it closes, dispatching each to the
// matching Service or pending ResponseIterator. Intended to run in its own
// goroutine for the lifetime of the connection.
func (m *Multiplexer) Run() {
	for {
		frame, err := m.conn.Receive()
		if err != nil {
			m.drainPending()
			return
		}
		m.dispatch(frame)
	}
}

func (m *Multiplexer) dispatch(frame Frame) {
	switch frame.Tag {
	case TagRequest:
		m.mu.Lock()
		svc, ok := m.services[frame.Service]
		m.mu.Unlock()
		if !ok {
			m.conn.Send(Frame{Tag: TagError, ID: frame.ID, Data: jsonString(ErrUnknownService.Error())})
			return
		}
		go svc(frame.Data, &Responder{mux: m, id: frame.ID})

	case TagData, TagError:
		m.completeRequest(frame, true)
	case TagStream:
		m.forwardToRequest(frame)
	case TagStreamEnd:
		m.completeRequest(frame, true)
	case TagStreamError, TagWriteStreamError:
		m.completeRequest(frame, true)
	}
}

func (m *Multiplexer) forwardToRequest(frame Frame) {
	m.mu.Lock()
	it, ok := m.pending[frame.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case it.frames <- frame:
	case <-it.done:
	}
}

func (m *Multiplexer) completeRequest(frame Frame, terminal bool) {
	m.mu.Lock()
	it, ok := m.pending[frame.ID]
	if ok && terminal {
		delete(m.pending, frame.ID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if frame.Tag == TagError || frame.Tag == TagStreamError || frame.Tag == TagWriteStreamError {
		it.mu.Lock()
		var msg string
		json.Unmarshal(frame.Data, &msg)
		it.err = fmt.Errorf("%s", msg)
		it.mu.Unlock()
	} else if frame.Tag == TagData {
		select {
		case it.frames <- frame:
		case <-it.done:
		}
	}
	close(it.frames)
	close(it.done)
}

func (m *Multiplexer) drainPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.pending {
		close(it.frames)
		close(it.done)
		delete(m.pending, id)
	}
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
