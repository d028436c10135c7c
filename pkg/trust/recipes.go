// Copyright 2025 OneCore Project

package trust

import "github.com/onecore-dev/onecore/pkg/canon"

// SignKeyRecipe describes one signing key as an unversioned object, so
// that two profiles naming the same key converge on the same hash.
var SignKeyRecipe = canon.Recipe{
	Type: "SignKey",
	Fields: []canon.FieldRule{
		{Name: "publicKey", Kind: canon.KindBytes},
	},
}

// ProfileRecipe is the versioned per-person collection of keys and
// certificates a person has published about themselves (spec.md §4.7).
// Re-publishing a profile under the same personId replaces the prior
// version in that person's VersionMap; old certificates are not revoked
// automatically — a profile's later version simply stops listing them.
var ProfileRecipe = canon.Recipe{
	Type:      "Profile",
	Versioned: true,
	Fields: []canon.FieldRule{
		{Name: "personId", Kind: canon.KindString, Identifying: true},
		{Name: "keys", Kind: canon.KindSet, Item: &canon.FieldRule{Kind: canon.KindRefObject}},
		{Name: "certificates", Kind: canon.KindSet, Item: &canon.FieldRule{Kind: canon.KindRefObject}},
	},
}

// certificateFields is shared by TrustKeysCertificate and
// AffirmationCertificate: both name the issuing person, the key they
// vouch for, and a detached signature over that pair.
func certificateFields() []canon.FieldRule {
	return []canon.FieldRule{
		{Name: "issuer", Kind: canon.KindString},
		{Name: "key", Kind: canon.KindRefObject},
		{Name: "signature", Kind: canon.KindBytes},
	}
}

// TrustKeysCertificateRecipe lets an issuer with
// RightToDeclareTrustedKeysForEverybody vouch for a key on behalf of any
// profile (spec.md §4.7).
var TrustKeysCertificateRecipe = canon.Recipe{
	Type:   "TrustKeysCertificate",
	Fields: certificateFields(),
}

// AffirmationCertificateRecipe lets an issuer with
// RightToDeclareTrustedKeysForSelf vouch for a key on its own profile.
var AffirmationCertificateRecipe = canon.Recipe{
	Type:   "AffirmationCertificate",
	Fields: certificateFields(),
}

// Right names one of the two delegable trust-declaration rights.
type Right string

const (
	RightToDeclareTrustedKeysForEverybody Right = "Everybody"
	RightToDeclareTrustedKeysForSelf      Right = "Self"
)

// RightCertificateRecipe grants a Right to a person. It is only honored
// when signerKey is a local root key — rights are not themselves
// delegable through the trust graph (spec.md §4.7 step 4).
var RightCertificateRecipe = canon.Recipe{
	Type: "RightCertificate",
	Fields: []canon.FieldRule{
		{Name: "subject", Kind: canon.KindString},
		{Name: "right", Kind: canon.KindString},
		{Name: "signerKey", Kind: canon.KindRefObject},
		{Name: "signature", Kind: canon.KindBytes},
	},
}

// Register adds every trust-graph recipe to registry.
func Register(registry *canon.Registry) {
	registry.Register(SignKeyRecipe)
	registry.Register(ProfileRecipe)
	registry.Register(TrustKeysCertificateRecipe)
	registry.Register(AffirmationCertificateRecipe)
	registry.Register(RightCertificateRecipe)
}
