// Copyright 2025 OneCore Project
//
// Package canon provides sentinel errors for the canonical serializer.

package canon

import "errors"

// Sentinel errors for canonicalization failures, per spec.md §4.2.
var (
	// ErrUnknownType is returned when an object names a recipe that is not registered.
	ErrUnknownType = errors.New("unknown type")

	// ErrRecipeRuleViolation is returned when a value does not match its field rule.
	ErrRecipeRuleViolation = errors.New("recipe rule violation")

	// ErrForbiddenValue is returned for NaN, +/-Infinity, or any value with no
	// deterministic textual form.
	ErrForbiddenValue = errors.New("forbidden value")

	// ErrMalformedHash is returned when a hex hash string fails the
	// ^[0-9a-f]{64}$ check.
	ErrMalformedHash = errors.New("malformed hash")

	// ErrWrongType is returned when an object is read back with a type
	// assertion that does not match its recipe tag.
	ErrWrongType = errors.New("wrong type")
)
