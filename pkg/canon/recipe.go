// Copyright 2025 OneCore Project

package canon

// Kind enumerates the primitive, container, and reference field kinds a
// recipe rule can describe, per spec.md §3.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindBytes
	KindOrderedList  // ordered sequence
	KindBag          // unordered multi-set
	KindSet          // set (deduplicated, unordered)
	KindMap          // mapping, keyed by string
	KindNestedObject // recursive, nested recipe
	KindRefObject    // reference-to-object: ObjectHash of any object
	KindRefId        // reference-to-id: IdHash
	KindRefBlob      // reference-to-blob: ObjectHash tagged BLOB
	KindRefClob      // reference-to-clob: ObjectHash tagged CLOB
)

// IsReference reports whether k is one of the four reference kinds.
func (k Kind) IsReference() bool {
	switch k {
	case KindRefObject, KindRefId, KindRefBlob, KindRefClob:
		return true
	default:
		return false
	}
}

// FieldRule describes one named field of a recipe: its kind, whether it
// participates in the identifying subset, and (for containers and nested
// objects) the rule governing its elements.
type FieldRule struct {
	Name        string
	Kind        Kind
	Identifying bool

	// Item is the element rule for KindOrderedList, KindBag, and KindSet.
	Item *FieldRule

	// NestedRecipe names the recipe of a KindNestedObject field.
	NestedRecipe string
}

// Recipe is an ordered list of field rules for one object type. Fields are
// walked in declared order, not the language-level enumeration order of a
// map, so that serialization is deterministic regardless of how the object
// was built in memory (spec.md §4.2, property S6).
type Recipe struct {
	Type string

	// Versioned selects the store discipline: versioned types carry an
	// identifying subset and a VersionMap; unversioned types are stored
	// once by ObjectHash (spec.md §3).
	Versioned bool

	Fields []FieldRule
}

// IdentifyingFields returns the subset of fields marked Identifying, in
// recipe order.
func (r Recipe) IdentifyingFields() []FieldRule {
	out := make([]FieldRule, 0, len(r.Fields))
	for _, f := range r.Fields {
		if f.Identifying {
			out = append(out, f)
		}
	}
	return out
}
