// Copyright 2025 OneCore Project

package objectstore

import "errors"

// Sentinel errors for the object store, per spec.md §4.4, §6.
var (
	// ErrNotVersioned is returned when a versioned-only operation is called
	// against a recipe that is not Versioned.
	ErrNotVersioned = errors.New("type is not versioned")

	// ErrAlreadyVersioned is returned when StoreUnversioned is called
	// against a recipe that is Versioned.
	ErrAlreadyVersioned = errors.New("type is versioned; use StoreVersioned")

	// ErrCorruptVersionMap is returned when a VersionMap's stored bytes are
	// not a whole number of fixed-width entry lines.
	ErrCorruptVersionMap = errors.New("corrupt version map")

	// ErrNoSuchVersion is returned when an id hash has no recorded version.
	ErrNoSuchVersion = errors.New("id hash has no stored version")
)
