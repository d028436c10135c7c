// Copyright 2025 OneCore Project

package crypto

// Fixed lengths for the Curve25519/XSalsa20-Poly1305/Ed25519 family, per
// the external interface table.
const (
	NonceSize        = 24
	SymKeySize       = 32
	BoxPublicSize    = 32
	BoxSecretSize    = 32
	SignPublicSize   = 32
	SignSecretSize   = 64
	SignatureSize    = 64
	MinSaltSize      = 16
)

// Nonce is a 24-byte XSalsa20 nonce.
type Nonce [NonceSize]byte

// SymKey is a 32-byte XSalsa20-Poly1305 symmetric key.
type SymKey [SymKeySize]byte

// BoxPublicKey is a Curve25519 public key used for peer-to-peer encryption.
type BoxPublicKey [BoxPublicSize]byte

// BoxSecretKey is a Curve25519 secret key used for peer-to-peer encryption.
type BoxSecretKey [BoxSecretSize]byte

// SignPublicKey is an Ed25519 public key.
type SignPublicKey [SignPublicSize]byte

// SignSecretKey is an Ed25519 secret key (seed + public key, 64 bytes).
type SignSecretKey [SignSecretSize]byte

// Signature is a detached Ed25519 signature.
type Signature [SignatureSize]byte

func ensureLen(b []byte, want int) error {
	if len(b) != want {
		return ErrMalformedKey
	}
	return nil
}
