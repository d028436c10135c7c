// Copyright 2025 OneCore Project
//
// Package crypto wraps the Curve25519/XSalsa20-Poly1305/Ed25519 primitives
// that everything above the object store builds on: nonce and key
// generation, authenticated symmetric and peer-to-peer encryption, detached
// signatures, and scrypt-based password derivation. No hidden randomness is
// introduced once a caller supplies its own nonce.

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters, fixed at build time per spec.md §4.1 and §6
// ("documented in §6"). N must be a power of two.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// RandomNonce returns a fresh random 24-byte nonce.
func RandomNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, err
	}
	return n, nil
}

// RandomSymmetricKey returns a fresh random 32-byte symmetric key.
func RandomSymmetricKey() (SymKey, error) {
	var k SymKey
	if _, err := rand.Read(k[:]); err != nil {
		return SymKey{}, err
	}
	return k, nil
}

// NewBoxKeyPair generates a new Curve25519 keypair for peer-to-peer
// encryption.
func NewBoxKeyPair() (BoxPublicKey, BoxSecretKey, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return BoxPublicKey{}, BoxSecretKey{}, err
	}
	return BoxPublicKey(*pub), BoxSecretKey(*sec), nil
}

// NewSignKeyPair generates a new Ed25519 signing keypair.
func NewSignKeyPair() (SignPublicKey, SignSecretKey, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SignPublicKey{}, SignSecretKey{}, err
	}
	var p SignPublicKey
	var s SignSecretKey
	copy(p[:], pub)
	copy(s[:], sec)
	return p, s, nil
}

// DeriveSymmetricFromSecret derives a 32-byte symmetric key from a password
// and a salt of at least MinSaltSize bytes, using scrypt with the fixed
// cost parameters above.
func DeriveSymmetricFromSecret(password, salt []byte) (SymKey, error) {
	if len(salt) < MinSaltSize {
		return SymKey{}, ErrMalformedSalt
	}
	derived, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, SymKeySize)
	if err != nil {
		return SymKey{}, err
	}
	var k SymKey
	copy(k[:], derived)
	return k, nil
}

// SymmetricEncrypt authenticates and encrypts plain with key and nonce.
func SymmetricEncrypt(plain []byte, key SymKey, nonce Nonce) []byte {
	return secretbox.Seal(nil, plain, (*[NonceSize]byte)(&nonce), (*[SymKeySize]byte)(&key))
}

// SymmetricDecrypt verifies and decrypts cypher with key and nonce. Any bit
// flip in cypher surfaces as ErrTamperedCiphertext.
func SymmetricDecrypt(cypher []byte, key SymKey, nonce Nonce) ([]byte, error) {
	plain, ok := secretbox.Open(nil, cypher, (*[NonceSize]byte)(&nonce), (*[SymKeySize]byte)(&key))
	if !ok {
		return nil, ErrTamperedCiphertext
	}
	return plain, nil
}

// SymmetricEncryptEmbedNonce encrypts plain and prefixes the result with the
// nonce used, generating one at random if nonce is nil.
func SymmetricEncryptEmbedNonce(plain []byte, key SymKey, nonce *Nonce) ([]byte, error) {
	var n Nonce
	if nonce != nil {
		n = *nonce
	} else {
		generated, err := RandomNonce()
		if err != nil {
			return nil, err
		}
		n = generated
	}
	cypher := SymmetricEncrypt(plain, key, n)
	out := make([]byte, 0, NonceSize+len(cypher))
	out = append(out, n[:]...)
	out = append(out, cypher...)
	return out, nil
}

// SymmetricDecryptEmbeddedNonce is the inverse of SymmetricEncryptEmbedNonce.
func SymmetricDecryptEmbeddedNonce(nonceAndCypher []byte, key SymKey) ([]byte, error) {
	if len(nonceAndCypher) < NonceSize {
		return nil, ErrMalformedNonce
	}
	var n Nonce
	copy(n[:], nonceAndCypher[:NonceSize])
	return SymmetricDecrypt(nonceAndCypher[NonceSize:], key, n)
}

// PeerEncrypt encrypts plain for theirPub using a shared key derived from
// mySec and theirPub via curve25519, then symmetric_encrypt.
func PeerEncrypt(plain []byte, mySec BoxSecretKey, theirPub BoxPublicKey, nonce Nonce) []byte {
	return box.Seal(nil, plain, (*[NonceSize]byte)(&nonce), (*[BoxPublicSize]byte)(&theirPub), (*[BoxSecretSize]byte)(&mySec))
}

// PeerDecrypt is the inverse of PeerEncrypt.
func PeerDecrypt(cypher []byte, mySec BoxSecretKey, theirPub BoxPublicKey, nonce Nonce) ([]byte, error) {
	plain, ok := box.Open(nil, cypher, (*[NonceSize]byte)(&nonce), (*[BoxPublicSize]byte)(&theirPub), (*[BoxSecretSize]byte)(&mySec))
	if !ok {
		return nil, ErrTamperedCiphertext
	}
	return plain, nil
}

// SharedSecret derives the raw Curve25519 shared secret between mySec and
// theirPub, without the symmetric-encryption step. Exposed for callers
// that need to derive one shared key and reuse it across many messages
// instead of paying the scalar multiplication once per call.
func SharedSecret(mySec BoxSecretKey, theirPub BoxPublicKey) (SymKey, error) {
	shared, err := curve25519.X25519(mySec[:], theirPub[:])
	if err != nil {
		return SymKey{}, err
	}
	var k SymKey
	copy(k[:], shared)
	return k, nil
}

// Sign produces a detached Ed25519 signature over data.
func Sign(data []byte, sec SignSecretKey) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(sec[:]), data)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify checks a detached Ed25519 signature over data.
func Verify(data []byte, sig Signature, pub SignPublicKey) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), data, sig[:])
}

// ConstantTimeEqual compares two byte slices in constant time, used by
// callers that compare hashes or keys derived from secret material.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EnsureNonce validates the length of a raw nonce byte slice.
func EnsureNonce(b []byte) (Nonce, error) {
	var n Nonce
	if err := ensureLen(b, NonceSize); err != nil {
		return n, ErrMalformedNonce
	}
	copy(n[:], b)
	return n, nil
}

// EnsureSymKey validates the length of a raw symmetric-key byte slice.
func EnsureSymKey(b []byte) (SymKey, error) {
	var k SymKey
	if err := ensureLen(b, SymKeySize); err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// EnsureBoxPublicKey validates the length of a raw box public key.
func EnsureBoxPublicKey(b []byte) (BoxPublicKey, error) {
	var k BoxPublicKey
	if err := ensureLen(b, BoxPublicSize); err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// EnsureSignPublicKey validates the length of a raw sign public key.
func EnsureSignPublicKey(b []byte) (SignPublicKey, error) {
	var k SignPublicKey
	if err := ensureLen(b, SignPublicSize); err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}
