// Copyright 2025 OneCore Project
//
// Package reverseindex maintains, for every hash ever referenced by a
// stored object, the set of objects that reference it (spec.md §4.5,
// component C5). Each (target hash, reference kind, referencing type) triple
// gets its own append-only file — named "<target>.Object.<Type>" for
// object/blob/clob references or "<target>.IdObject.<Type>" for id
// references — holding the deduplicated, newline-separated hex hashes of
// every object of that type observed to reference the target. A Maintainer
// implements objectstore.ReverseIndexUpdater and is wired in via
// Store.SetReverseIndex.

package reverseindex

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/onecore-dev/onecore/pkg/blobstore"
	"github.com/onecore-dev/onecore/pkg/canon"
)

// Kind names the two reverse-map families a target hash can have.
type Kind string

const (
	// ObjectKind records references by ObjectHash, blob, or clob.
	ObjectKind Kind = "Object"
	// IdObjectKind records references by IdHash.
	IdObjectKind Kind = "IdObject"
)

func kindOf(refKind canon.Kind) Kind {
	if refKind == canon.KindRefId {
		return IdObjectKind
	}
	return ObjectKind
}

// wildcardType is the "track every referencing type" sentinel, equivalent
// to the "{*}" filter entry in the initiallyEnabledReverseMapTypes
// configuration option (spec.md §6).
const wildcardType = "*"

// coreEnabledTypes are the referencing types the store always indexes
// regardless of configuration, because other components depend on being
// able to walk "who references this key/access/group" without requiring
// every deployment to remember to enable them (spec.md §4.5 supplement).
var coreEnabledTypes = []string{"Access", "Group", "IdAccess", "Keys", "Instance"}

// Maintainer is the blobstore-backed reverse-index implementation.
type Maintainer struct {
	blobs  *blobstore.Store
	logger *log.Logger

	mu      sync.RWMutex
	enabled map[Kind]map[string]bool

	fileLocksMu sync.Mutex
	fileLocks   map[string]*sync.Mutex
}

// NewMaintainer creates a Maintainer over blobs with each core-enabled
// type pre-registered by name for both ObjectKind and IdObjectKind.
func NewMaintainer(blobs *blobstore.Store) *Maintainer {
	m := &Maintainer{
		blobs:     blobs,
		logger:    log.New(os.Stderr, "[reverseindex] ", log.LstdFlags),
		enabled:   map[Kind]map[string]bool{ObjectKind: {}, IdObjectKind: {}},
		fileLocks: make(map[string]*sync.Mutex),
	}
	for _, t := range coreEnabledTypes {
		m.enabled[ObjectKind][t] = true
		m.enabled[IdObjectKind][t] = true
	}
	return m
}

// WithLogger overrides the maintainer's logger.
func (m *Maintainer) WithLogger(logger *log.Logger) *Maintainer {
	m.logger = logger
	return m
}

// Enable turns on reverse-map maintenance for (kind, parentType), or for
// every parentType if parentType is "*". Enabling the same pair twice
// returns ErrDuplicateEnable.
func (m *Maintainer) Enable(kind Kind, parentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enabled[kind][parentType] {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateEnable, kind, parentType)
	}
	m.enabled[kind][parentType] = true
	return nil
}

func (m *Maintainer) isEnabled(kind Kind, parentType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[kind][wildcardType] || m.enabled[kind][parentType]
}

// Update implements objectstore.ReverseIndexUpdater: it records parent as a
// referrer of every ref.Target, in the reverse map selected by ref.Kind and
// parentType.
func (m *Maintainer) Update(parent canon.ObjectHash, parentType string, refs []canon.Reference) error {
	for _, ref := range refs {
		kind := kindOf(ref.Kind)
		if !m.isEnabled(kind, parentType) {
			continue
		}
		filename := reverseMapFilename(ref.Target, kind, parentType)
		if err := m.appendDeduped(filename, parent.String()); err != nil {
			return fmt.Errorf("recording reference from %s to %s: %w", parent, ref.Target, err)
		}
	}
	return nil
}

// Referrers returns every distinct hash recorded as referencing target via
// (kind, parentType), in the order first observed.
func (m *Maintainer) Referrers(target canon.Hash, kind Kind, parentType string) ([]string, error) {
	data, err := m.blobs.ReadAppendFile(reverseMapFilename(target, kind, parentType))
	if err != nil {
		return nil, err
	}
	return splitLines(data), nil
}

func (m *Maintainer) appendDeduped(filename, entry string) error {
	lock := m.lockFor(filename)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.blobs.ReadAppendFile(filename)
	if err != nil {
		return err
	}
	for _, line := range splitLines(existing) {
		if line == entry {
			return nil
		}
	}
	return m.blobs.Append(filename, []byte(entry+"\n"))
}

func (m *Maintainer) lockFor(filename string) *sync.Mutex {
	m.fileLocksMu.Lock()
	defer m.fileLocksMu.Unlock()
	lock, ok := m.fileLocks[filename]
	if !ok {
		lock = &sync.Mutex{}
		m.fileLocks[filename] = lock
	}
	return lock
}

func reverseMapFilename(target canon.Hash, kind Kind, parentType string) string {
	return fmt.Sprintf("reverse/%s.%s.%s", target.String(), kind, parentType)
}

func splitLines(data []byte) []string {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
