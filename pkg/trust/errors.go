// Copyright 2025 OneCore Project

package trust

import "errors"

// Sentinel errors for trust-graph resolution, per spec.md §4.7.
var (
	// ErrNoRootKeys is returned when resolution is attempted before any
	// root key has been registered.
	ErrNoRootKeys = errors.New("no root keys configured")
)
