// Copyright 2025 OneCore Project

package relay

import "errors"

// Sentinel errors for the relay client (component C9, spec.md §4.9).
var (
	// ErrNotListening is returned by operations that require an active
	// relay connection when none is currently established.
	ErrNotListening = errors.New("relay client is not listening")
	// ErrInvitationExpired is returned when an invitation's attempt budget
	// is exhausted without a successful pairing.
	ErrInvitationExpired = errors.New("invitation has no attempts remaining")
	// ErrChallengeMismatch is returned when a pairing challenge-response
	// doesn't match the expected re-encryption.
	ErrChallengeMismatch = errors.New("challenge response did not match")
	// ErrPoolExhausted is returned when the spare connection pool has no
	// connection available and a new one could not be opened.
	ErrPoolExhausted = errors.New("no spare relay connection available")
)
