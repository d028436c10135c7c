// Copyright 2025 OneCore Project

package objectstore

import (
	"sync"
	"testing"

	"github.com/onecore-dev/onecore/pkg/blobstore"
	"github.com/onecore-dev/onecore/pkg/canon"
)

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

var personRecipe = canon.Recipe{
	Type:      "Person",
	Versioned: true,
	Fields: []canon.FieldRule{
		{Name: "personId", Kind: canon.KindString, Identifying: true},
		{Name: "name", Kind: canon.KindString},
		{Name: "bestFriend", Kind: canon.KindRefId},
	},
}

var documentRecipe = canon.Recipe{
	Type: "Document",
	Fields: []canon.FieldRule{
		{Name: "content", Kind: canon.KindBytes},
	},
}

func newTestStore() *Store {
	registry := canon.NewRegistry()
	registry.Register(personRecipe)
	registry.Register(documentRecipe)
	registry.Register(versionNodeRecipe)
	blobs := blobstore.New(newMemKV())
	return New(blobs, registry)
}

func TestStoreUnversionedIsIdempotent(t *testing.T) {
	s := newTestStore()
	doc := canon.NewObject("Document", map[string]any{"content": []byte("hello")})

	r1, err := s.StoreUnversioned(doc)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if r1.Status != blobstore.NEW {
		t.Errorf("expected NEW, got %v", r1.Status)
	}

	r2, err := s.StoreUnversioned(doc)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if r2.Status != blobstore.EXISTS {
		t.Errorf("expected EXISTS, got %v", r2.Status)
	}
	if r1.Hash != r2.Hash {
		t.Errorf("expected stable hash across identical writes")
	}
}

func TestStoreUnversionedRejectsVersionedRecipe(t *testing.T) {
	s := newTestStore()
	p := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann"})
	if _, err := s.StoreUnversioned(p); err == nil {
		t.Fatal("expected error storing a versioned type as unversioned")
	}
}

func TestStoreVersionedAllocatesMonotoneTimestamps(t *testing.T) {
	s := newTestStore()
	s.Clock = func() int64 { return 100 }

	p1 := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann"})
	r1, err := s.StoreVersioned(p1)
	if err != nil {
		t.Fatalf("store v1: %v", err)
	}

	// Simulate a second write at the same wall-clock second: the map must
	// still advance the timestamp rather than collide.
	p2 := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann2"})
	r2, err := s.StoreVersioned(p2)
	if err != nil {
		t.Fatalf("store v2: %v", err)
	}

	if r1.IdHash != r2.IdHash {
		t.Fatalf("expected same id hash across versions, got %v and %v", r1.IdHash, r2.IdHash)
	}
	if r2.Timestamp <= r1.Timestamp {
		t.Errorf("expected monotone timestamp, got %d then %d", r1.Timestamp, r2.Timestamp)
	}

	versions, err := s.Versions("Person", r1.IdHash)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
}

func TestGetByIDReturnsLatestVersion(t *testing.T) {
	s := newTestStore()
	ticks := int64(0)
	s.Clock = func() int64 { ticks++; return ticks }

	p1 := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann"})
	r1, err := s.StoreVersioned(p1)
	if err != nil {
		t.Fatalf("store v1: %v", err)
	}
	p2 := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann2"})
	if _, err := s.StoreVersioned(p2); err != nil {
		t.Fatalf("store v2: %v", err)
	}

	got, err := s.GetByID("Person", r1.IdHash)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Fields["name"] != "Ann2" {
		t.Errorf("expected latest version, got name %v", got.Fields["name"])
	}
}

func TestStoreIdObjectMatchesIdHash(t *testing.T) {
	s := newTestStore()
	p := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann"})

	wantID, err := canon.IdHashOf(p, personRecipe)
	if err != nil {
		t.Fatalf("id hash of: %v", err)
	}
	got, err := s.StoreIdObject(p)
	if err != nil {
		t.Fatalf("store id object: %v", err)
	}
	if got != wantID {
		t.Errorf("StoreIdObject hash %v does not match IdHashOf %v", got, wantID)
	}
}

type recordingReverseIndex struct {
	mu    sync.Mutex
	calls []canon.Reference
}

func (r *recordingReverseIndex) Update(parent canon.ObjectHash, parentType string, refs []canon.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, refs...)
	return nil
}

func TestReverseIndexNotifiedOfReferences(t *testing.T) {
	s := newTestStore()
	ri := &recordingReverseIndex{}
	s.SetReverseIndex(ri)

	friendID := canon.IdHash{0xAA}
	p := canon.NewObject("Person", map[string]any{
		"personId":   "p1",
		"name":       "Ann",
		"bestFriend": friendID,
	})
	if _, err := s.StoreVersioned(p); err != nil {
		t.Fatalf("store: %v", err)
	}

	// Two blobs are written: the Person (its bestFriend reference) and its
	// VersionNode (its reference to the Person blob).
	if len(ri.calls) != 2 {
		t.Fatalf("expected two references reported, got %d", len(ri.calls))
	}
	if ri.calls[0].Kind != canon.KindRefId {
		t.Errorf("expected KindRefId, got %v", ri.calls[0].Kind)
	}
}

func TestEventsPublishedOnWrite(t *testing.T) {
	s := newTestStore()
	var got []Event
	cancel := s.Subscribe(func(ev Event) { got = append(got, ev) })
	defer cancel()

	doc := canon.NewObject("Document", map[string]any{"content": []byte("hi")})
	if _, err := s.StoreUnversioned(doc); err != nil {
		t.Fatalf("store: %v", err)
	}

	if len(got) != 1 || got[0].Kind != UnversionedObjectStored {
		t.Fatalf("expected one UnversionedObjectStored event, got %+v", got)
	}
}

func TestMergeVersionMapUnionsHistories(t *testing.T) {
	s := newTestStore()
	ticks := int64(0)
	s.Clock = func() int64 { ticks++; return ticks }

	p1 := canon.NewObject("Person", map[string]any{"personId": "p1", "name": "Ann"})
	r1, err := s.StoreVersioned(p1)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	// Build a "remote" map with one version we don't have locally.
	remoteEntry := VersionEntry{Timestamp: r1.Timestamp + 50, DataHash: canon.ObjectHash{0x01}, MetaHash: canon.ObjectHash{0x02}}
	remoteBytes := encodeEntry(remoteEntry)

	if err := s.MergeVersionMap("Person", r1.IdHash, remoteBytes); err != nil {
		t.Fatalf("merge: %v", err)
	}

	versions, err := s.Versions("Person", r1.IdHash)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions after merge, got %d", len(versions))
	}
}
