// Copyright 2025 OneCore Project

package relay

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onecore-dev/onecore/pkg/crypto"
)

const (
	// defaultMaxTries is how many pairing attempts an Invitation accepts
	// before it can no longer be redeemed (spec.md §4.9).
	defaultMaxTries = 4
	// defaultTryInterval is the minimum spacing enforced between pairing
	// attempts against one Invitation.
	defaultTryInterval = 2 * time.Second
)

// Invitation is a short-lived pairing token naming where the inviter can
// be reached (its OneInstanceEndpoint: a relay URL plus routing id) and
// the box/sign keys it will pair with.
type Invitation struct {
	Token     string
	Endpoint  string
	Public    crypto.BoxPublicKey
	SignKey   crypto.SignPublicKey
	MaxTries  int
	Interval  time.Duration
	triesLeft int
	lastTry   time.Time
}

// NewInvitation creates an Invitation advertising endpoint and the given
// keys, with the default attempt budget.
func NewInvitation(endpoint string, public crypto.BoxPublicKey, signKey crypto.SignPublicKey) (*Invitation, error) {
	return &Invitation{
		Token:     uuid.NewString(),
		Endpoint:  endpoint,
		Public:    public,
		SignKey:   signKey,
		MaxTries:  defaultMaxTries,
		Interval:  defaultTryInterval,
		triesLeft: defaultMaxTries,
	}, nil
}

// TryAttempt records one pairing attempt, enforcing both the attempt
// budget and the minimum spacing between tries. It returns
// ErrInvitationExpired once the budget is exhausted.
func (inv *Invitation) TryAttempt(now time.Time) error {
	if inv.triesLeft <= 0 {
		return ErrInvitationExpired
	}
	if !inv.lastTry.IsZero() && now.Sub(inv.lastTry) < inv.Interval {
		return fmt.Errorf("pairing attempts must be spaced at least %s apart", inv.Interval)
	}
	inv.triesLeft--
	inv.lastTry = now
	return nil
}

// RemainingTries reports how many pairing attempts this Invitation has
// left.
func (inv *Invitation) RemainingTries() int {
	return inv.triesLeft
}

// PairedIdentity is what a completed pairing hands back: the peer's
// endpoint and keys, to be persisted (e.g. into a trust.Profile) by the
// caller under its own root key.
type PairedIdentity struct {
	Endpoint string
	Public   crypto.BoxPublicKey
	SignKey  crypto.SignPublicKey
}

// InitiatePairing runs the inviter's side of the challenge-response
// handshake described in challenge.go over conn, against the invitee's
// advertised box key. It returns the invitee's identity once the
// handshake's response has been verified.
func InitiatePairing(conn pairingConn, mySec crypto.BoxSecretKey, theirPub crypto.BoxPublicKey, theirSignKey crypto.SignPublicKey, endpoint string) (*PairedIdentity, error) {
	plain, nonce, cipher, err := issueChallenge(mySec, theirPub)
	if err != nil {
		return nil, err
	}
	if err := conn.SendChallenge(nonce, cipher); err != nil {
		return nil, err
	}
	responseNonce, response, err := conn.AwaitResponse()
	if err != nil {
		return nil, err
	}
	ok, err := verifyChallengeResponse(plain, responseNonce, response, mySec, theirPub)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChallengeMismatch
	}
	return &PairedIdentity{Endpoint: endpoint, Public: theirPub, SignKey: theirSignKey}, nil
}

// RespondToPairing runs the invitee's side: it waits for the inviter's
// challenge and answers it.
func RespondToPairing(conn pairingConn, mySec crypto.BoxSecretKey, theirPub crypto.BoxPublicKey) error {
	nonce, cipher, err := conn.AwaitChallenge()
	if err != nil {
		return err
	}
	responseNonce, response, err := answerChallenge(cipher, nonce, mySec, theirPub)
	if err != nil {
		return err
	}
	return conn.SendResponse(responseNonce, response)
}

// pairingConn is the minimal transport InitiatePairing/RespondToPairing
// need, kept separate from pkg/connection.Connection so the handshake
// logic can be unit-tested without a websocket round trip.
type pairingConn interface {
	SendChallenge(nonce crypto.Nonce, cipher []byte) error
	AwaitChallenge() (crypto.Nonce, []byte, error)
	SendResponse(nonce crypto.Nonce, response []byte) error
	AwaitResponse() (crypto.Nonce, []byte, error)
}
