// Copyright 2025 OneCore Project
//
// KV Adapter for CometBFT Database Integration
// Wraps cometbft-db's dbm.DB interface to implement blobstore.KV, so the
// blob store (and the version maps the object store keeps in it) can sit on
// top of any embedded KV backend cometbft-db supports (badger, goleveldb,
// in-memory) instead of flat files.

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// Adapter wraps a cometbft-db dbm.DB and exposes the plain Get/Set/Has
// surface the store packages depend on.
type Adapter struct {
	db dbm.DB
}

// NewAdapter creates a new Adapter for the given underlying DB.
func NewAdapter(db dbm.DB) *Adapter {
	return &Adapter{db: db}
}

// Get implements KV.Get.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	// v is nil if the key is not present; callers treat that as "not found".
	return v, nil
}

// Set implements KV.Set, using SetSync so writes are durable before the
// call returns (spec.md §4.3: "writes atomic against reader observation").
func (a *Adapter) Set(key, value []byte) error {
	return a.db.SetSync(key, value)
}

// Has implements KV.Has.
func (a *Adapter) Has(key []byte) (bool, error) {
	return a.db.Has(key)
}

// Close releases the underlying database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Open opens a named cometbft-db database of the given backend type
// ("badgerdb", "goleveldb", "memdb") under dir.
func Open(name, backend, dir string) (*Adapter, error) {
	db, err := dbm.NewDB(name, dbm.BackendType(backend), dir)
	if err != nil {
		return nil, err
	}
	return NewAdapter(db), nil
}
