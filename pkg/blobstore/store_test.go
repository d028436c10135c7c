// Copyright 2025 OneCore Project

package blobstore

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/onecore-dev/onecore/pkg/canon"
)

func objectHashFromBytes(b []byte) canon.ObjectHash {
	var h canon.ObjectHash
	copy(h[:], b)
	return h
}

// memKV is an in-memory KV used only for tests.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[string(key)], nil
}

func (m *memKV) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func TestPutIsIdempotent(t *testing.T) {
	s := New(newMemKV())

	h1, status1, err := s.Put([]byte("hello"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if status1 != NEW {
		t.Errorf("expected NEW on first put, got %s", status1)
	}

	h2, status2, err := s.Put([]byte("hello"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if status2 != EXISTS {
		t.Errorf("expected EXISTS on second put, got %s", status2)
	}
	if h1 != h2 {
		t.Errorf("expected identical hash for identical bytes")
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(newMemKV())
	h, _, _ := s.Put([]byte("something else"))

	var other [32]byte
	if _, err := s.Get(objectHashFromBytes(other[:])); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("something else")) {
		t.Errorf("got %q, want %q", got, "something else")
	}
}

func TestAppendAccumulatesWithoutOverwrite(t *testing.T) {
	s := New(newMemKV())

	if err := s.Append("reverse/abc", []byte("line1\n")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.Append("reverse/abc", []byte("line2\n")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	got, err := s.ReadAppendFile("reverse/abc")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "line1\nline2\n" {
		t.Errorf("got %q, want %q", got, "line1\nline2\n")
	}
}

func TestShutdownRejectsWrites(t *testing.T) {
	s := New(newMemKV())
	s.Shutdown()

	if _, _, err := s.Put([]byte("x")); !errors.Is(err, ErrShutdownInProgress) {
		t.Errorf("expected ErrShutdownInProgress, got %v", err)
	}
	if err := s.Append("f", []byte("x")); !errors.Is(err, ErrShutdownInProgress) {
		t.Errorf("expected ErrShutdownInProgress, got %v", err)
	}
}
