// Copyright 2025 OneCore Project

package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSymmetricEncryptRoundTrip(t *testing.T) {
	key, err := RandomSymmetricKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	nonce, err := RandomNonce()
	if err != nil {
		t.Fatalf("failed to generate nonce: %v", err)
	}

	plain := []byte("hello friend")
	cypher := SymmetricEncrypt(plain, key, nonce)

	got, err := SymmetricDecrypt(cypher, key, nonce)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plain)
	}
}

func TestSymmetricDecryptTamperedCiphertext(t *testing.T) {
	key, _ := RandomSymmetricKey()
	nonce, _ := RandomNonce()
	cypher := SymmetricEncrypt([]byte("hello friend"), key, nonce)

	cypher[0] ^= 0xFF

	if _, err := SymmetricDecrypt(cypher, key, nonce); !errors.Is(err, ErrTamperedCiphertext) {
		t.Errorf("expected ErrTamperedCiphertext, got %v", err)
	}
}

func TestSymmetricEncryptEmbedNonceRoundTrip(t *testing.T) {
	key, _ := RandomSymmetricKey()
	plain := []byte("embedded nonce payload")

	blob, err := SymmetricEncryptEmbedNonce(plain, key, nil)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	got, err := SymmetricDecryptEmbeddedNonce(blob, key)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plain)
	}
}

func TestPeerEncryptSymmetry(t *testing.T) {
	myPub, mySec, err := NewBoxKeyPair()
	if err != nil {
		t.Fatalf("failed to generate keypair: %v", err)
	}
	theirPub, theirSec, err := NewBoxKeyPair()
	if err != nil {
		t.Fatalf("failed to generate keypair: %v", err)
	}
	nonce, _ := RandomNonce()

	plain := []byte("a message between peers")
	cypher := PeerEncrypt(plain, mySec, theirPub, nonce)

	got, err := PeerDecrypt(cypher, theirSec, myPub, nonce)
	if err != nil {
		t.Fatalf("peer decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("peer round trip mismatch: got %q, want %q", got, plain)
	}
}

func TestSignVerify(t *testing.T) {
	pub, sec, err := NewSignKeyPair()
	if err != nil {
		t.Fatalf("failed to generate signing keypair: %v", err)
	}

	data := []byte("attest to this")
	sig := Sign(data, sec)

	if !Verify(data, sig, pub) {
		t.Errorf("expected signature to verify")
	}

	sig[0] ^= 0xFF
	if Verify(data, sig, pub) {
		t.Errorf("expected tampered signature to fail verification")
	}
}

func TestDeriveSymmetricFromSecretRejectsShortSalt(t *testing.T) {
	_, err := DeriveSymmetricFromSecret([]byte("password"), make([]byte, 8))
	if !errors.Is(err, ErrMalformedSalt) {
		t.Errorf("expected ErrMalformedSalt, got %v", err)
	}
}

func TestDeriveSymmetricFromSecretDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, MinSaltSize)

	a, err := DeriveSymmetricFromSecret([]byte("hunter2"), salt)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	b, err := DeriveSymmetricFromSecret([]byte("hunter2"), salt)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic derivation for the same password and salt")
	}
}

func TestEnsureSymKeyRejectsWrongLength(t *testing.T) {
	if _, err := EnsureSymKey(make([]byte, 10)); !errors.Is(err, ErrMalformedKey) {
		t.Errorf("expected ErrMalformedKey, got %v", err)
	}
}
