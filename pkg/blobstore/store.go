// Copyright 2025 OneCore Project
//
// Package blobstore persists immutable byte blobs keyed by their content
// hash (spec.md §4.3, component C3). Storage layout is opaque to callers:
// the default backend here is a cometbft-db KV (see pkg/kvdb), but any
// durable mapping that makes writes atomic against reader observation is a
// valid implementation.

package blobstore

import (
	"log"
	"os"
	"sync"

	"github.com/onecore-dev/onecore/pkg/canon"
)

// KV is the minimal key-value surface the blob store needs. pkg/kvdb.Adapter
// implements it over cometbft-db.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Status reports whether Put wrote a new blob or found one already present.
type Status int

const (
	// NEW means the blob did not previously exist.
	NEW Status = iota
	// EXISTS means the blob was already present, byte-identical.
	EXISTS
)

func (s Status) String() string {
	if s == NEW {
		return "NEW"
	}
	return "EXISTS"
}

// Store is a content-addressed mapping from canon.Hash to bytes, plus a
// named-file append primitive used by the reverse-index maintainer (C5).
type Store struct {
	kv     KV
	logger *log.Logger

	mu          sync.Mutex // guards closed and the appendLocks map itself
	closed      bool
	appendLocks map[string]*sync.Mutex
}

// New creates a Store backed by kv.
func New(kv KV) *Store {
	return &Store{
		kv:          kv,
		logger:      log.New(os.Stderr, "[blobstore] ", log.LstdFlags),
		appendLocks: make(map[string]*sync.Mutex),
	}
}

// WithLogger overrides the store's logger.
func (s *Store) WithLogger(logger *log.Logger) *Store {
	s.logger = logger
	return s
}

// Put stores data and returns its hash and whether it was newly written.
// Put is idempotent: storing the same bytes twice returns EXISTS the
// second time (spec.md property 2).
func (s *Store) Put(data []byte) (canon.ObjectHash, Status, error) {
	if s.isClosed() {
		return canon.ObjectHash{}, 0, ErrShutdownInProgress
	}

	h := canon.ObjectHash(canon.HashBytes(data))
	existing, err := s.kv.Get(hashKey(h))
	if err != nil {
		return canon.ObjectHash{}, 0, err
	}
	if existing != nil {
		return h, EXISTS, nil
	}
	if err := s.kv.Set(hashKey(h), data); err != nil {
		return canon.ObjectHash{}, 0, err
	}
	return h, NEW, nil
}

// Get retrieves the bytes stored under h.
func (s *Store) Get(h canon.ObjectHash) ([]byte, error) {
	v, err := s.kv.Get(hashKey(h))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// Exists reports whether h is present in the store.
func (s *Store) Exists(h canon.ObjectHash) (bool, error) {
	v, err := s.kv.Get(hashKey(h))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Append appends data to the named file, serialized per filename so two
// concurrent appenders to the same file never interleave (spec.md §4.3,
// §4.5). Two updates to unrelated filenames proceed without contending on
// each other's lock.
func (s *Store) Append(filename string, data []byte) error {
	if s.isClosed() {
		return ErrShutdownInProgress
	}

	lock := s.lockFor(filename)
	lock.Lock()
	defer lock.Unlock()

	key := appendKey(filename)
	existing, err := s.kv.Get(key)
	if err != nil {
		return err
	}
	combined := append(existing, data...)
	return s.kv.Set(key, combined)
}

// ReadAppendFile returns the full accumulated contents written via Append
// for filename.
func (s *Store) ReadAppendFile(filename string) ([]byte, error) {
	v, err := s.kv.Get(appendKey(filename))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Overwrite replaces the named file's contents wholesale instead of
// accumulating onto the existing tail. Used by the object store when
// merging two divergent VersionMap histories, where the merged result can
// reorder or drop lines rather than simply extend them (spec.md §6).
func (s *Store) Overwrite(filename string, data []byte) error {
	if s.isClosed() {
		return ErrShutdownInProgress
	}
	lock := s.lockFor(filename)
	lock.Lock()
	defer lock.Unlock()
	return s.kv.Set(appendKey(filename), data)
}

// Shutdown marks the store closed: subsequent writes fail with
// ErrShutdownInProgress (spec.md §5, §9). In-flight calls are not
// interrupted; callers are expected to await any call started before
// Shutdown returns.
func (s *Store) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) lockFor(filename string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.appendLocks[filename]
	if !ok {
		lock = &sync.Mutex{}
		s.appendLocks[filename] = lock
	}
	return lock
}

func hashKey(h canon.ObjectHash) []byte {
	return append([]byte("blob:"), []byte(h.String())...)
}

func appendKey(filename string) []byte {
	return append([]byte("append:"), []byte(filename)...)
}
