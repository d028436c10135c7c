// Copyright 2025 OneCore Project
//
// The pairing handshake proves both sides hold the secret key matching the
// box public key they just exchanged, without ever sending that secret:
// one side encrypts a random challenge for the other, which must decrypt
// it, flip every bit (the classic "prove you could read this" ack this
// protocol uses instead of echoing the plaintext back verbatim, which
// would leak a decryption oracle), and encrypt the complement back.

package relay

import (
	"github.com/onecore-dev/onecore/pkg/crypto"
)

// issueChallenge encrypts a fresh random challenge for theirPub. The
// ciphertext and the nonce used must both be sent to the peer; verifier
// retains the plaintext to check the eventual response against.
func issueChallenge(mySec crypto.BoxSecretKey, theirPub crypto.BoxPublicKey) (plain []byte, nonce crypto.Nonce, cipher []byte, err error) {
	var challenge crypto.SymKey
	challenge, err = crypto.RandomSymmetricKey()
	if err != nil {
		return nil, crypto.Nonce{}, nil, err
	}
	nonce, err = crypto.RandomNonce()
	if err != nil {
		return nil, crypto.Nonce{}, nil, err
	}
	cipher = crypto.PeerEncrypt(challenge[:], mySec, theirPub, nonce)
	return challenge[:], nonce, cipher, nil
}

// answerChallenge decrypts cipher (sent using senderNonce), complements
// every bit of the plaintext, and re-encrypts the result under a fresh
// nonce for the original sender.
func answerChallenge(cipher []byte, senderNonce crypto.Nonce, mySec crypto.BoxSecretKey, theirPub crypto.BoxPublicKey) (responseNonce crypto.Nonce, response []byte, err error) {
	plain, err := crypto.PeerDecrypt(cipher, mySec, theirPub, senderNonce)
	if err != nil {
		return crypto.Nonce{}, nil, err
	}
	complement(plain)

	responseNonce, err = crypto.RandomNonce()
	if err != nil {
		return crypto.Nonce{}, nil, err
	}
	response = crypto.PeerEncrypt(plain, mySec, theirPub, responseNonce)
	return responseNonce, response, nil
}

// verifyChallengeResponse decrypts response and checks it equals the
// bitwise complement of the original challenge plaintext.
func verifyChallengeResponse(original []byte, responseNonce crypto.Nonce, response []byte, mySec crypto.BoxSecretKey, theirPub crypto.BoxPublicKey) (bool, error) {
	plain, err := crypto.PeerDecrypt(response, mySec, theirPub, responseNonce)
	if err != nil {
		return false, err
	}
	want := make([]byte, len(original))
	copy(want, original)
	complement(want)
	return crypto.ConstantTimeEqual(plain, want), nil
}

func complement(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}
