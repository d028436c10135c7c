// Copyright 2025 OneCore Project

package canon

// Object is a concrete instance of a recipe: a type tag plus a set of
// named field values. Field values are read from Fields by name, not by
// map iteration order, so the in-memory order of Fields never affects the
// serialized form (spec.md property S6).
//
// Supported value types per Kind:
//
//	KindString       string
//	KindNumber       float64
//	KindBool         bool
//	KindBytes        []byte
//	KindOrderedList  []any, elements matching Item's value type
//	KindBag          []any, elements matching Item's value type
//	KindSet          []any, elements matching Item's value type
//	KindMap          map[string]any, values matching Item's value type
//	KindNestedObject *Object, whose Type matches NestedRecipe
//	KindRefObject    ObjectHash, IdHash, Hash, or a 64-hex string
//	KindRefId        same as KindRefObject
//	KindRefBlob      same as KindRefObject
//	KindRefClob      same as KindRefObject
type Object struct {
	Type   string
	Fields map[string]any
}

// NewObject creates an Object of the given type with the given fields.
func NewObject(typ string, fields map[string]any) *Object {
	return &Object{Type: typ, Fields: fields}
}

// Get returns a field value, and whether it was present.
func (o *Object) Get(name string) (any, bool) {
	if o.Fields == nil {
		return nil, false
	}
	v, ok := o.Fields[name]
	return v, ok
}

// project builds a new Object carrying only the identifying fields of
// recipe, used to compute an IdHash (spec.md §3, §4.2).
func project(o *Object, recipe Recipe) *Object {
	idFields := recipe.IdentifyingFields()
	out := make(map[string]any, len(idFields))
	for _, f := range idFields {
		if v, ok := o.Fields[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return &Object{Type: o.Type, Fields: out}
}
