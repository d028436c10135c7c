// Copyright 2025 OneCore Project

package canon

// Reference is one outgoing reference discovered by walking an object's
// fields against its recipe: the hash it points at, and which of the four
// reference kinds (spec.md §3) it was declared as.
type Reference struct {
	Target Hash
	Kind   Kind
}

// References walks o's fields per recipe and returns every reference value
// found, including references nested inside ordered lists, bags, and sets.
// Values that fail to parse as a hash are skipped rather than erroring —
// callers that need strict validation should call Serialize first, which
// already enforces recipe conformance.
func References(o *Object, recipe Recipe) []Reference {
	var out []Reference
	for _, field := range recipe.Fields {
		v, ok := o.Fields[field.Name]
		if !ok {
			continue
		}
		collectReferences(field, v, &out)
	}
	return out
}

func collectReferences(field FieldRule, v any, out *[]Reference) {
	switch field.Kind {
	case KindRefObject, KindRefId, KindRefBlob, KindRefClob:
		if h, err := asHash(v); err == nil {
			*out = append(*out, Reference{Target: h, Kind: field.Kind})
		}
	case KindOrderedList, KindBag, KindSet:
		if field.Item == nil {
			return
		}
		items, err := asSlice(v)
		if err != nil {
			return
		}
		for _, item := range items {
			collectReferences(*field.Item, item, out)
		}
	case KindMap:
		if field.Item == nil {
			return
		}
		m, err := asMap(v)
		if err != nil {
			return
		}
		for _, item := range m {
			collectReferences(*field.Item, item, out)
		}
	}
}
