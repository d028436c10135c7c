// Copyright 2025 OneCore Project

package reverseindex

import "errors"

// Sentinel errors for reverse-index maintenance, per spec.md §4.5.
var (
	// ErrDuplicateEnable is returned when a (kind, parentType) pair is
	// enabled twice.
	ErrDuplicateEnable = errors.New("reverse map type already enabled")
)
