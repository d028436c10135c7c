// Copyright 2025 OneCore Project

package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Hash is a fixed-length 32-byte SHA-256 digest, rendered as 64-character
// lowercase hex for external use (spec.md §6).
type Hash [sha256.Size]byte

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// String renders the hash as 64-character lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash validates and decodes a hex hash string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if !hashPattern.MatchString(s) {
		return h, ErrMalformedHash
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, ErrMalformedHash
	}
	copy(h[:], raw)
	return h, nil
}

func hashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// HashBytes returns the SHA-256 hash of arbitrary bytes. Used by the blob
// store to compute content addresses outside of the recipe-driven
// Serialize path.
func HashBytes(b []byte) Hash {
	return hashBytes(b)
}

// ObjectHash is the hash of the canonical form of a concrete object. Two
// distinct hash flavors exist at the type level so that an ObjectHash can
// never be silently substituted for an IdHash.
type ObjectHash Hash

func (h ObjectHash) String() string { return Hash(h).String() }

// IdHash is the hash of the canonical form of the identifying subset of a
// versioned object's fields. It stays stable across versions of the same
// logical entity.
type IdHash Hash

func (h IdHash) String() string { return Hash(h).String() }

// Less orders two ObjectHash values lexicographically by their hex form,
// used to break ties in version-map and channel-entry ordering.
func (h ObjectHash) Less(other ObjectHash) bool {
	return h.String() < other.String()
}
