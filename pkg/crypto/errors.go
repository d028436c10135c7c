// Copyright 2025 OneCore Project
//
// Package crypto provides sentinel errors for the primitive operations.

package crypto

import "errors"

// Sentinel errors for crypto operations
var (
	// ErrMalformedKey is returned when a key does not match its expected length
	ErrMalformedKey = errors.New("malformed key")

	// ErrMalformedNonce is returned when a nonce does not match its expected length
	ErrMalformedNonce = errors.New("malformed nonce")

	// ErrMalformedSalt is returned when a salt is shorter than the minimum length
	ErrMalformedSalt = errors.New("malformed salt")

	// ErrTamperedCiphertext is returned when authenticated decryption fails
	ErrTamperedCiphertext = errors.New("tampered ciphertext")
)
