// Copyright 2025 OneCore Project
//
// Package objectstore is the content-addressed object store (spec.md §4.4,
// component C4): it serializes objects against registered recipes, writes
// them through the blob store, maintains a VersionMap per identifying id
// for versioned types, notifies a reverse-index updater of every newly
// written blob, and notifies event subscribers of each StoreUnversioned and
// StoreVersioned call.

package objectstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/onecore-dev/onecore/pkg/blobstore"
	"github.com/onecore-dev/onecore/pkg/canon"
)

// ReverseIndexUpdater is the hook C5 (pkg/reverseindex) implements so every
// reference discovered on a freshly stored object gets recorded, without
// objectstore importing reverseindex directly (spec.md §4.5).
type ReverseIndexUpdater interface {
	Update(parent canon.ObjectHash, parentType string, refs []canon.Reference) error
}

// versionNodeRecipe is the built-in wrapper recipe materialized alongside
// every VersionMap entry: it names the version's ObjectHash and the
// timestamp it was written at (spec.md §6, "VersionNode").
var versionNodeRecipe = canon.Recipe{
	Type: "VersionNode",
	Fields: []canon.FieldRule{
		{Name: "object", Kind: canon.KindRefObject},
		{Name: "timestamp", Kind: canon.KindNumber},
	},
}

// Result is the outcome of storing an unversioned object.
type Result struct {
	Hash   canon.ObjectHash
	Status blobstore.Status
}

// VersionedResult is the outcome of storing one version of a versioned
// object.
type VersionedResult struct {
	Hash      canon.ObjectHash
	IdHash    canon.IdHash
	Timestamp int64
	Status    blobstore.Status
}

// Store is the object store proper.
type Store struct {
	blobs    *blobstore.Store
	registry *canon.Registry

	hub          *hub
	reverseIndex ReverseIndexUpdater

	// Clock returns the current time as a Unix timestamp. Overridable so
	// tests can control timestamp allocation; nil means time.Now().Unix().
	Clock func() int64

	idLocksMu sync.Mutex
	idLocks   map[canon.IdHash]*sync.Mutex
}

// New creates a Store over blobs, resolving recipes from registry.
// VersionNode, the wrapper type written alongside every VersionMap entry,
// is registered into registry automatically.
func New(blobs *blobstore.Store, registry *canon.Registry) *Store {
	registry.Register(versionNodeRecipe)
	return &Store{
		blobs:    blobs,
		registry: registry,
		hub:      newHub(),
		idLocks:  make(map[canon.IdHash]*sync.Mutex),
	}
}

// SetReverseIndex installs the updater invoked after every successful
// write. A Store with none installed simply skips reverse-map maintenance.
func (s *Store) SetReverseIndex(ri ReverseIndexUpdater) {
	s.reverseIndex = ri
}

// Subscribe registers fn to receive every Event this store publishes. The
// returned func cancels the subscription.
func (s *Store) Subscribe(fn func(Event)) func() {
	return s.hub.subscribe(fn)
}

// Close drops all event subscribers. The underlying blob store's lifecycle
// is owned separately by the caller.
func (s *Store) Close() {
	s.hub.close()
}

// StoreUnversioned stores o, whose recipe must not be Versioned, and
// returns its content hash. Storing the same bytes twice is idempotent
// (spec.md property 2): the second call returns blobstore.EXISTS.
func (s *Store) StoreUnversioned(o *canon.Object) (Result, error) {
	recipe, err := s.registry.Recipe(o.Type)
	if err != nil {
		return Result{}, err
	}
	if recipe.Versioned {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyVersioned, o.Type)
	}

	hash, status, err := s.writeBlob(o, recipe)
	if err != nil {
		return Result{}, err
	}
	s.hub.publish(Event{Kind: UnversionedObjectStored, Type: o.Type, Hash: hash})
	return Result{Hash: hash, Status: status}, nil
}

// StoreIdObject stores only the identifying subset of o — used when a
// caller needs to reference the logical entity itself rather than one of
// its versions (spec.md §4.4). The resulting hash is the same bytes as
// canon.IdHashOf(o, recipe), since both hash the same projected, canonical
// form.
func (s *Store) StoreIdObject(o *canon.Object) (canon.IdHash, error) {
	recipe, err := s.registry.Recipe(o.Type)
	if err != nil {
		return canon.IdHash{}, err
	}
	if !recipe.Versioned {
		return canon.IdHash{}, fmt.Errorf("%w: %s", ErrNotVersioned, o.Type)
	}

	idRecipe := canon.Recipe{Type: recipe.Type, Fields: recipe.IdentifyingFields()}
	projected := projectIdentifying(o, recipe)
	hash, _, err := s.writeBlob(projected, idRecipe)
	if err != nil {
		return canon.IdHash{}, err
	}
	return canon.IdHash(hash), nil
}

// StoreVersioned stores one version of a versioned object: the object
// itself is written like any other blob, then a monotone timestamp is
// allocated and appended to the type's VersionMap alongside a VersionNode
// wrapper recording the write (spec.md §4.4, §6).
func (s *Store) StoreVersioned(o *canon.Object) (VersionedResult, error) {
	recipe, err := s.registry.Recipe(o.Type)
	if err != nil {
		return VersionedResult{}, err
	}
	if !recipe.Versioned {
		return VersionedResult{}, fmt.Errorf("%w: %s", ErrNotVersioned, o.Type)
	}

	idHash, err := canon.IdHashOf(o, recipe)
	if err != nil {
		return VersionedResult{}, err
	}

	hash, status, err := s.writeBlob(o, recipe)
	if err != nil {
		return VersionedResult{}, err
	}

	lock := s.lockFor(idHash)
	lock.Lock()
	defer lock.Unlock()

	filename := versionMapFilename(recipe.Type, idHash)
	existing, err := s.blobs.ReadAppendFile(filename)
	if err != nil {
		return VersionedResult{}, err
	}
	entries, err := decodeEntries(existing)
	if err != nil {
		return VersionedResult{}, err
	}

	ts := s.now()
	if head, ok := latest(entries); ok && ts <= head.Timestamp {
		ts = head.Timestamp + 1
	}

	versionNode := canon.NewObject("VersionNode", map[string]any{
		"object":    hash,
		"timestamp": float64(ts),
	})
	metaHash, _, err := s.writeBlob(versionNode, versionNodeRecipe)
	if err != nil {
		return VersionedResult{}, err
	}

	entry := VersionEntry{Timestamp: ts, DataHash: hash, MetaHash: metaHash}
	if err := s.blobs.Append(filename, encodeEntry(entry)); err != nil {
		return VersionedResult{}, err
	}

	s.hub.publish(Event{Kind: VersionedObjectStored, Type: o.Type, Hash: hash, IdHash: idHash, Timestamp: ts})
	return VersionedResult{Hash: hash, IdHash: idHash, Timestamp: ts, Status: status}, nil
}

// Get retrieves the object stored under hash and resolves it against the
// recipe its leading type token names, applying any registered
// up-conversion (spec.md §4.4).
func (s *Store) Get(hash canon.ObjectHash) (*canon.Object, error) {
	raw, err := s.blobs.Get(hash)
	if err != nil {
		return nil, err
	}
	typ, err := canon.PeekType(raw)
	if err != nil {
		return nil, err
	}
	recipe, err := s.registry.Recipe(typ)
	if err != nil {
		return nil, err
	}
	o, err := canon.Deserialize(raw, recipe)
	if err != nil {
		return nil, err
	}
	return s.registry.ResolveUpConversion(o), nil
}

// GetByID resolves idHash's current head version under typ's VersionMap
// and returns it (spec.md §6). typ is required because VersionMaps are
// filed per recipe type, not globally.
func (s *Store) GetByID(typ string, idHash canon.IdHash) (*canon.Object, error) {
	entries, err := s.Versions(typ, idHash)
	if err != nil {
		return nil, err
	}
	head, ok := latest(entries)
	if !ok {
		return nil, ErrNoSuchVersion
	}
	return s.Get(head.DataHash)
}

// Versions returns idHash's full recorded history under typ, sorted
// oldest-first.
func (s *Store) Versions(typ string, idHash canon.IdHash) ([]VersionEntry, error) {
	data, err := s.blobs.ReadAppendFile(versionMapFilename(typ, idHash))
	if err != nil {
		return nil, err
	}
	entries, err := decodeEntries(data)
	if err != nil {
		return nil, err
	}
	return merge(entries, nil), nil
}

// MergeVersionMap unions a remote VersionMap's raw bytes into the local
// one for idHash, deduplicating and re-sorting so that two peers who
// synced different subsets of writes converge on the same map (spec.md
// §6). It replaces the stored file wholesale rather than appending, since
// merging can reorder or drop duplicate lines the remote side also saw.
func (s *Store) MergeVersionMap(typ string, idHash canon.IdHash, remote []byte) error {
	remoteEntries, err := decodeEntries(remote)
	if err != nil {
		return err
	}

	lock := s.lockFor(idHash)
	lock.Lock()
	defer lock.Unlock()

	filename := versionMapFilename(typ, idHash)
	local, err := s.blobs.ReadAppendFile(filename)
	if err != nil {
		return err
	}
	localEntries, err := decodeEntries(local)
	if err != nil {
		return err
	}

	merged := merge(localEntries, remoteEntries)
	var buf []byte
	for _, e := range merged {
		buf = append(buf, encodeEntry(e)...)
	}
	return s.blobs.Overwrite(filename, buf)
}

// writeBlob serializes o against recipe, writes it through the blob store,
// and — on a genuinely new write — feeds its outgoing references to the
// reverse-index updater.
func (s *Store) writeBlob(o *canon.Object, recipe canon.Recipe) (canon.ObjectHash, blobstore.Status, error) {
	encoded, err := canon.Serialize(o, recipe)
	if err != nil {
		return canon.ObjectHash{}, 0, err
	}
	hash, status, err := s.blobs.Put(encoded)
	if err != nil {
		return canon.ObjectHash{}, 0, err
	}
	if status == blobstore.NEW && s.reverseIndex != nil {
		if refs := canon.References(o, recipe); len(refs) > 0 {
			if err := s.reverseIndex.Update(hash, recipe.Type, refs); err != nil {
				return hash, status, fmt.Errorf("updating reverse index: %w", err)
			}
		}
	}
	return hash, status, nil
}

func (s *Store) now() int64 {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().Unix()
}

func (s *Store) lockFor(idHash canon.IdHash) *sync.Mutex {
	s.idLocksMu.Lock()
	defer s.idLocksMu.Unlock()
	lock, ok := s.idLocks[idHash]
	if !ok {
		lock = &sync.Mutex{}
		s.idLocks[idHash] = lock
	}
	return lock
}

func projectIdentifying(o *canon.Object, recipe canon.Recipe) *canon.Object {
	idFields := recipe.IdentifyingFields()
	fields := make(map[string]any, len(idFields))
	for _, f := range idFields {
		if v, ok := o.Fields[f.Name]; ok {
			fields[f.Name] = v
		}
	}
	return canon.NewObject(o.Type, fields)
}
