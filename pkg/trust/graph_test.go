// Copyright 2025 OneCore Project

package trust

import (
	"sync"
	"testing"

	"github.com/onecore-dev/onecore/pkg/blobstore"
	"github.com/onecore-dev/onecore/pkg/canon"
	"github.com/onecore-dev/onecore/pkg/crypto"
	"github.com/onecore-dev/onecore/pkg/objectstore"
	"github.com/onecore-dev/onecore/pkg/reverseindex"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[string(key)], nil
}

func (m *memKV) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

type harness struct {
	objects *objectstore.Store
	index   *reverseindex.Maintainer
	graph   *Graph
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry := canon.NewRegistry()
	Register(registry)

	blobs := blobstore.New(newMemKV())
	objects := objectstore.New(blobs, registry)
	index := reverseindex.NewMaintainer(blobs)
	if err := index.Enable(reverseindex.ObjectKind, "Profile"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	objects.SetReverseIndex(index)

	return &harness{objects: objects, index: index, graph: New(objects, index)}
}

// storeKey records a SignKey object and returns its content hash.
func storeKey(t *testing.T, h *harness, pub crypto.SignPublicKey) canon.Hash {
	t.Helper()
	res, err := h.objects.StoreUnversioned(canon.NewObject("SignKey", map[string]any{
		"publicKey": pub[:],
	}))
	if err != nil {
		t.Fatalf("store key: %v", err)
	}
	return canon.Hash(res.Hash)
}

// storeCertificate builds and stores a TrustKeysCertificate or
// AffirmationCertificate, signed by sec, vouching that issuer trusts the
// key named by keyHash.
func storeCertificate(t *testing.T, h *harness, kind, issuer string, keyHash canon.Hash, sec crypto.SignSecretKey) canon.Hash {
	t.Helper()
	sig := crypto.Sign(certificatePayload(issuer, keyHash), sec)
	res, err := h.objects.StoreUnversioned(canon.NewObject(kind, map[string]any{
		"issuer":    issuer,
		"key":       keyHash,
		"signature": sig[:],
	}))
	if err != nil {
		t.Fatalf("store certificate: %v", err)
	}
	return canon.Hash(res.Hash)
}

// storeRightCertificate grants subject the given right, signed by
// signerSec whose key hash is signerKeyHash.
func storeRightCertificate(t *testing.T, h *harness, subject string, r Right, signerKeyHash canon.Hash, signerSec crypto.SignSecretKey) canon.Hash {
	t.Helper()
	sig := crypto.Sign(certificatePayload(subject, signerKeyHash), signerSec)
	res, err := h.objects.StoreUnversioned(canon.NewObject("RightCertificate", map[string]any{
		"subject":   subject,
		"right":     string(r),
		"signerKey": signerKeyHash,
		"signature": sig[:],
	}))
	if err != nil {
		t.Fatalf("store right certificate: %v", err)
	}
	return canon.Hash(res.Hash)
}

func storeProfile(t *testing.T, h *harness, personID string, keys, certs []canon.Hash) {
	t.Helper()
	keySet := make([]any, len(keys))
	for i, k := range keys {
		keySet[i] = k
	}
	certSet := make([]any, len(certs))
	for i, c := range certs {
		certSet[i] = c
	}
	_, err := h.objects.StoreVersioned(canon.NewObject("Profile", map[string]any{
		"personId":     personID,
		"keys":         keySet,
		"certificates": certSet,
	}))
	if err != nil {
		t.Fatalf("store profile for %s: %v", personID, err)
	}
}

func TestRootKeyIsAlwaysTrusted(t *testing.T) {
	h := newHarness(t)
	rootPub, _, _ := crypto.NewSignKeyPair()
	rootHash := storeKey(t, h, rootPub)
	h.graph.SetRootKeys([]string{rootHash.String()})

	trusted, err := h.graph.IsTrusted(rootHash.String())
	if err != nil {
		t.Fatalf("is_trusted: %v", err)
	}
	if !trusted {
		t.Error("root key should be trusted")
	}
}

func TestUnknownKeyIsNotTrusted(t *testing.T) {
	h := newHarness(t)
	rootPub, _, _ := crypto.NewSignKeyPair()
	rootHash := storeKey(t, h, rootPub)
	h.graph.SetRootKeys([]string{rootHash.String()})

	otherPub, _, _ := crypto.NewSignKeyPair()
	otherHash := storeKey(t, h, otherPub)

	trusted, err := h.graph.IsTrusted(otherHash.String())
	if err != nil {
		t.Fatalf("is_trusted: %v", err)
	}
	if trusted {
		t.Error("unrelated key should not be trusted")
	}
}

// TestDelegatedTrustChain exercises the full chain: a root key grants
// "issuer" the Everybody right directly (a RightCertificate signed by the
// root key itself, listed on issuer's own profile); issuer then vouches
// for a new key on "subject"'s profile via a TrustKeysCertificate signed
// with the root's secret key standing in for issuer's own (the root key is
// also listed among issuer's keys, so is_trusted can identify it as the u
// that produced the signature); that key should now resolve as trusted.
func TestDelegatedTrustChain(t *testing.T) {
	h := newHarness(t)

	rootPub, rootSec, _ := crypto.NewSignKeyPair()
	rootHash := storeKey(t, h, rootPub)
	h.graph.SetRootKeys([]string{rootHash.String()})

	rightCertHash := storeRightCertificate(t, h, "issuer", RightToDeclareTrustedKeysForEverybody, rootHash, rootSec)
	storeProfile(t, h, "issuer", []canon.Hash{rootHash}, []canon.Hash{rightCertHash})

	subjectPub, _, _ := crypto.NewSignKeyPair()
	subjectKeyHash := storeKey(t, h, subjectPub)

	trustCertHash := storeCertificate(t, h, "TrustKeysCertificate", "issuer", subjectKeyHash, rootSec)
	storeProfile(t, h, "subject", []canon.Hash{subjectKeyHash}, []canon.Hash{trustCertHash})

	trusted, err := h.graph.IsTrusted(subjectKeyHash.String())
	if err != nil {
		t.Fatalf("is_trusted: %v", err)
	}
	if !trusted {
		t.Error("expected subject key to be trusted via delegated TrustKeysCertificate")
	}
}

func TestCertificateFromUnauthorizedIssuerIsIgnored(t *testing.T) {
	h := newHarness(t)

	rootPub, _, _ := crypto.NewSignKeyPair()
	rootHash := storeKey(t, h, rootPub)
	h.graph.SetRootKeys([]string{rootHash.String()})

	// "issuer" never received a RightCertificate from a root key.
	_, issuerSec, _ := crypto.NewSignKeyPair()
	storeProfile(t, h, "issuer", nil, nil)

	subjectPub, _, _ := crypto.NewSignKeyPair()
	subjectKeyHash := storeKey(t, h, subjectPub)

	trustCertHash := storeCertificate(t, h, "TrustKeysCertificate", "issuer", subjectKeyHash, issuerSec)
	storeProfile(t, h, "subject", []canon.Hash{subjectKeyHash}, []canon.Hash{trustCertHash})

	trusted, err := h.graph.IsTrusted(subjectKeyHash.String())
	if err != nil {
		t.Fatalf("is_trusted: %v", err)
	}
	if trusted {
		t.Error("key vouched for by an unauthorized issuer should not be trusted")
	}
}
