// Copyright 2025 OneCore Project

package objectstore

import (
	"sync"

	"github.com/onecore-dev/onecore/pkg/canon"
)

// EventKind distinguishes the two notifications a Store emits on a
// successful write (spec.md §4.4, §5).
type EventKind int

const (
	// UnversionedObjectStored fires after StoreUnversioned completes.
	UnversionedObjectStored EventKind = iota
	// VersionedObjectStored fires after StoreVersioned completes.
	VersionedObjectStored
)

// Event describes one write a Store has just finished. IdHash and
// Timestamp are only meaningful for VersionedObjectStored.
type Event struct {
	Kind      EventKind
	Type      string
	Hash      canon.ObjectHash
	IdHash    canon.IdHash
	Timestamp int64
}

// hub is a minimal typed publish-subscribe fan-out. Listeners are
// cancelable individually, and close drops everyone at once on shutdown.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]func(Event))}
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	listeners := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = make(map[int]func(Event))
}
