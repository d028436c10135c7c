// Copyright 2025 OneCore Project

package blobstore

import "errors"

// Sentinel errors for blob store operations (spec.md §7).
var (
	// ErrNotFound is returned when a requested hash is absent from the store.
	ErrNotFound = errors.New("blob not found")

	// ErrShutdownInProgress is returned for any write issued after Shutdown
	// has been called (spec.md §5, §9).
	ErrShutdownInProgress = errors.New("shutdown in progress")
)
