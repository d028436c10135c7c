// Copyright 2025 OneCore Project

package channel

import (
	"sync"
	"testing"

	"github.com/onecore-dev/onecore/pkg/blobstore"
	"github.com/onecore-dev/onecore/pkg/canon"
	"github.com/onecore-dev/onecore/pkg/objectstore"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

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

var temperatureRecipe = canon.Recipe{
	Type: "Temperature",
	Fields: []canon.FieldRule{
		{Name: "value", Kind: canon.KindNumber},
	},
}

func newTestStore() *objectstore.Store {
	registry := canon.NewRegistry()
	Register(registry)
	registry.Register(temperatureRecipe)
	return objectstore.New(blobstore.New(newMemKV()), registry)
}

func reading(v float64) *canon.Object {
	return canon.NewObject("Temperature", map[string]any{"value": v})
}

func ts(n int64) *int64 { return &n }

func TestAppendSingleEntryBecomesHead(t *testing.T) {
	c := Open(newTestStore(), "c1", "")
	res, err := c.Append(reading(1), ts(100))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	head, err := c.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head != res.Head {
		t.Errorf("expected head %v, got %v", res.Head, head)
	}
}

func TestIterationOrderNewestFirst(t *testing.T) {
	c := Open(newTestStore(), "c1", "")
	if _, err := c.Append(reading(1), ts(100)); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if _, err := c.Append(reading(2), ts(200)); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if _, err := c.Append(reading(3), ts(300)); err != nil {
		t.Fatalf("append 3: %v", err)
	}

	entries, err := c.Iterate(Query{})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []float64{3, 2, 1}
	for i, e := range entries {
		if e.Data.Fields["value"] != want[i] {
			t.Errorf("entry %d: got %v, want %v", i, e.Data.Fields["value"], want[i])
		}
	}
}

func TestAppendOutOfOrderRebuildsChain(t *testing.T) {
	c := Open(newTestStore(), "c1", "")
	if _, err := c.Append(reading(1), ts(100)); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if _, err := c.Append(reading(3), ts(300)); err != nil {
		t.Fatalf("append 3: %v", err)
	}
	// Out-of-order: timestamp 200 arrives after 300 is already head.
	if _, err := c.Append(reading(2), ts(200)); err != nil {
		t.Fatalf("append 2 (out of order): %v", err)
	}

	entries, err := c.Iterate(Query{})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []float64{3, 2, 1}
	for i, e := range entries {
		if e.Data.Fields["value"] != want[i] {
			t.Errorf("entry %d: got %v, want %v", i, e.Data.Fields["value"], want[i])
		}
	}
}

func TestIterateRespectsCountAndFrom(t *testing.T) {
	c := Open(newTestStore(), "c1", "")
	for i, tsv := range []int64{100, 200, 300} {
		if _, err := c.Append(reading(float64(i)), ts(tsv)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	count := 1
	entries, err := c.Iterate(Query{Count: &count})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry with Count=1, got %d", len(entries))
	}

	from := int64(200)
	entries, err = c.Iterate(Query{From: &from})
	if err != nil {
		t.Fatalf("iterate from: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries with From=200, got %d", len(entries))
	}
}

func TestMergeMostCurrentAnnotatesSources(t *testing.T) {
	streamA := []EntryView{
		{EntryHash: canon.ObjectHash{0x03}, Timestamp: 300},
		{EntryHash: canon.ObjectHash{0x01}, Timestamp: 100},
	}
	streamB := []EntryView{
		{EntryHash: canon.ObjectHash{0x02}, Timestamp: 200},
	}

	merged := MergeMostCurrent([][]EntryView{streamA, streamB})
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged entries, got %d", len(merged))
	}
	wantTimestamps := []int64{300, 200, 100}
	for i, e := range merged {
		if e.Timestamp != wantTimestamps[i] {
			t.Errorf("entry %d: got timestamp %d, want %d", i, e.Timestamp, wantTimestamps[i])
		}
	}
	if merged[0].IterIndex != 0 || merged[1].IterIndex != 1 || merged[2].IterIndex != 0 {
		t.Errorf("unexpected source indices: %+v", merged)
	}
	if merged[0].ActiveIteratorCount != 2 {
		t.Errorf("expected 2 active iterators at first step, got %d", merged[0].ActiveIteratorCount)
	}
}
