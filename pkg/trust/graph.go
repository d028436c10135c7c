// Copyright 2025 OneCore Project
//
// Package trust resolves which signing keys are trusted, by walking
// certificates back to a locally-held root key (spec.md §4.7, component
// C7). Resolution is a memoized depth-first traversal; the memo is
// invalidated wholesale whenever a tracked person's profile, key, or
// certificate gets a new version. The memo, root-key set and cycle
// markers are guarded by the graph's mutex.

package trust

import (
	"fmt"
	"sync"

	"github.com/onecore-dev/onecore/pkg/canon"
	"github.com/onecore-dev/onecore/pkg/crypto"
	"github.com/onecore-dev/onecore/pkg/objectstore"
	"github.com/onecore-dev/onecore/pkg/reverseindex"
)

// ReferrerIndex is the subset of reverseindex.Maintainer's surface the
// trust graph needs: finding every Profile that names a given key.
type ReferrerIndex interface {
	Referrers(target canon.Hash, kind reverseindex.Kind, parentType string) ([]string, error)
}

// Graph resolves is_trusted(key) against a store of profiles and
// certificates.
type Graph struct {
	objects *objectstore.Store
	index   ReferrerIndex

	mu       sync.Mutex
	rootKeys map[string]bool
	memo     map[string]bool
	visiting map[string]bool
}

// New creates a Graph over objects, using index to look up which profiles
// reference a given key.
func New(objects *objectstore.Store, index ReferrerIndex) *Graph {
	g := &Graph{
		objects:  objects,
		index:    index,
		rootKeys: make(map[string]bool),
		memo:     make(map[string]bool),
		visiting: make(map[string]bool),
	}
	objects.Subscribe(func(ev objectstore.Event) {
		switch ev.Type {
		case "Profile", "SignKey", "TrustKeysCertificate", "AffirmationCertificate", "RightCertificate":
			g.Invalidate()
		}
	})
	return g
}

// SetRootKeys replaces the set of locally-held root keys (hex ObjectHash
// of each stored SignKey object), invalidating the cache since every key's trust can
// change when the root set changes. Callers choose which local identities
// to pass per the MainId/All root-key mode (spec.md §4.7): MainId passes
// only the main identity's keys, All passes every local identity's.
func (g *Graph) SetRootKeys(keys []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rootKeys = make(map[string]bool, len(keys))
	for _, k := range keys {
		g.rootKeys[k] = true
	}
	g.memo = make(map[string]bool)
}

// Invalidate clears the memoization cache. Safe to call concurrently with
// IsTrusted; in-flight resolutions simply recompute on their next call.
func (g *Graph) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memo = make(map[string]bool)
}

// IsTrusted reports whether key (hex ObjectHash of a stored SignKey
// object) is trusted. It returns ErrNoRootKeys if no root key is set.
func (g *Graph) IsTrusted(key string) (bool, error) {
	g.mu.Lock()
	if len(g.rootKeys) == 0 {
		g.mu.Unlock()
		return false, ErrNoRootKeys
	}
	if g.rootKeys[key] {
		g.mu.Unlock()
		return true, nil
	}
	if v, ok := g.memo[key]; ok {
		g.mu.Unlock()
		return v, nil
	}
	if g.visiting[key] {
		// Cycle: break without caching, since this is not yet a final
		// answer for key — a sibling branch may still resolve it.
		g.mu.Unlock()
		return false, nil
	}
	g.visiting[key] = true
	g.mu.Unlock()

	trusted, err := g.resolve(key)

	g.mu.Lock()
	delete(g.visiting, key)
	if err == nil {
		g.memo[key] = trusted
	}
	g.mu.Unlock()
	return trusted, err
}

func (g *Graph) resolve(key string) (bool, error) {
	keyHash, err := canon.ParseHash(key)
	if err != nil {
		return false, fmt.Errorf("trust: %w", err)
	}

	profileHashes, err := g.index.Referrers(keyHash, reverseindex.ObjectKind, "Profile")
	if err != nil {
		return false, err
	}

	for _, ph := range profileHashes {
		profileHash, err := canon.ParseHash(ph)
		if err != nil {
			continue
		}
		profile, err := g.objects.Get(canon.ObjectHash(profileHash))
		if err != nil {
			continue
		}

		for _, certRef := range asSlice(profile.Fields["certificates"]) {
			certHash := asHash(certRef)
			cert, err := g.objects.Get(canon.ObjectHash(certHash))
			if err != nil {
				continue
			}

			// Only a certificate actually vouching for the candidate key
			// under resolution is relevant here; a profile may carry
			// certificates about its other keys too.
			if asHash(cert.Fields["key"]) != keyHash {
				continue
			}

			issuer, _ := cert.Fields["issuer"].(string)
			sig, _ := cert.Fields["signature"].([]byte)

			var requiredRight Right
			switch cert.Type {
			case "TrustKeysCertificate":
				requiredRight = RightToDeclareTrustedKeysForEverybody
			case "AffirmationCertificate":
				// An affirmation only vouches for a key on the issuer's own profile.
				if owner, _ := profile.Fields["personId"].(string); owner != issuer {
					continue
				}
				requiredRight = RightToDeclareTrustedKeysForSelf
			default:
				continue
			}

			if !g.issuerHasRight(issuer, requiredRight) {
				continue
			}

			u, ok := g.findUsedKey(issuer, keyHash, sig)
			if !ok {
				continue
			}

			trustedUsed, err := g.IsTrusted(u.String())
			if err == nil && trustedUsed {
				return true, nil
			}
		}
	}
	return false, nil
}

// issuerHasRight scans the rights recorded on issuer's own Profile,
// honoring only those signed by a locally-held root key (spec.md §4.7
// step 4: rights are granted directly by a root, never inherited through
// the trust graph itself).
func (g *Graph) issuerHasRight(issuer string, right Right) bool {
	idHash, err := idHashForPerson(issuer)
	if err != nil {
		return false
	}
	profile, err := g.objects.GetByID("Profile", idHash)
	if err != nil {
		return false
	}

	for _, certRef := range asSlice(profile.Fields["certificates"]) {
		certHash := asHash(certRef)
		cert, err := g.objects.Get(canon.ObjectHash(certHash))
		if err != nil || cert.Type != "RightCertificate" {
			continue
		}
		if cert.Fields["subject"] != issuer {
			continue
		}
		if cert.Fields["right"] != string(right) {
			continue
		}

		signerKeyHash := asHash(cert.Fields["signerKey"])
		g.mu.Lock()
		isRoot := g.rootKeys[signerKeyHash.String()]
		g.mu.Unlock()
		if !isRoot {
			continue
		}

		sig, _ := cert.Fields["signature"].([]byte)
		if g.verifyCertificate(issuer, signerKeyHash, sig, signerKeyHash) {
			return true
		}
	}
	return false
}

// KeysOfPerson returns every key named in person's current profile
// (spec.md §4.7, "keys_of").
func (g *Graph) KeysOfPerson(person string) ([]string, error) {
	idHash, err := idHashForPerson(person)
	if err != nil {
		return nil, err
	}
	profile, err := g.objects.GetByID("Profile", idHash)
	if err == objectstore.ErrNoSuchVersion {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	for _, keyRef := range asSlice(profile.Fields["keys"]) {
		keys = append(keys, asHash(keyRef).String())
	}
	return keys, nil
}

func idHashForPerson(personID string) (canon.IdHash, error) {
	tmp := canon.NewObject("Profile", map[string]any{"personId": personID})
	return canon.IdHashOf(tmp, ProfileRecipe)
}

// certificatePayload is the byte sequence a certificate's signature
// covers: a person id and the certified key's hash. The person is the
// issuer for TrustKeys and Affirmation certificates, and the grantee
// (subject) for a RightCertificate.
// Wire format of this payload is a local choice, not externally visible.
func certificatePayload(subject string, key canon.Hash) []byte {
	return []byte(subject + ":" + key.String())
}

// findUsedKey identifies the used key u ∈ keys_of(issuer) (spec.md §4.7
// step 3): the payload a certificate's signature covers always names the
// candidate key the certificate vouches for (payloadKey), but the key that
// actually produced the signature — issuer's own — need not be payloadKey
// itself, so every key in issuer's profile is tried until one verifies.
func (g *Graph) findUsedKey(issuer string, payloadKey canon.Hash, sig []byte) (canon.Hash, bool) {
	issuerKeys, err := g.KeysOfPerson(issuer)
	if err != nil {
		return canon.Hash{}, false
	}
	for _, ik := range issuerKeys {
		u, err := canon.ParseHash(ik)
		if err != nil {
			continue
		}
		if g.verifyCertificate(issuer, payloadKey, sig, u) {
			return u, true
		}
	}
	return canon.Hash{}, false
}

// verifyCertificate checks sig against the public key bytes stored in the
// SignKey object signerKeyHash references, over the payload naming subject
// and payloadKey. signerKeyHash is a content hash, not key material, so it
// must be resolved through the object store first. payloadKey and
// signerKeyHash coincide when a certificate's own payload commits to the
// signer's key directly (e.g. RightCertificate); they differ when the
// payload instead names a different key the certificate vouches for (e.g.
// TrustKeysCertificate, where payloadKey is the candidate and signerKeyHash
// is the issuer's key u).
func (g *Graph) verifyCertificate(subject string, payloadKey canon.Hash, sig []byte, signerKeyHash canon.Hash) bool {
	if len(sig) != crypto.SignatureSize {
		return false
	}
	keyObj, err := g.objects.Get(canon.ObjectHash(signerKeyHash))
	if err != nil || keyObj.Type != "SignKey" {
		return false
	}
	raw, _ := keyObj.Fields["publicKey"].([]byte)
	pub, err := crypto.EnsureSignPublicKey(raw)
	if err != nil {
		return false
	}
	var s crypto.Signature
	copy(s[:], sig)
	return crypto.Verify(certificatePayload(subject, payloadKey), s, pub)
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asHash(v any) canon.Hash {
	switch h := v.(type) {
	case canon.Hash:
		return h
	case canon.ObjectHash:
		return canon.Hash(h)
	case canon.IdHash:
		return canon.Hash(h)
	default:
		return canon.Hash{}
	}
}
