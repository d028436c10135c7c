// Copyright 2025 OneCore Project
//
// The canonical serializer walks a recipe's field rules in declared order
// and renders each field as a length-prefixed, tagged element — referred
// to as microdata in the rest of this package's comments. Byte-equal
// serializations imply semantic equality (spec.md §4.2): two objects that
// differ only in the in-memory order their fields were built in still
// serialize identically, because encoding is driven by Recipe.Fields, not
// by map iteration.

package canon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Serialize renders o to its canonical byte form per recipe.
func Serialize(o *Object, recipe Recipe) ([]byte, error) {
	if o.Type != recipe.Type {
		return nil, fmt.Errorf("%w: object type %q does not match recipe %q", ErrRecipeRuleViolation, o.Type, recipe.Type)
	}

	var buf bytes.Buffer
	writeToken(&buf, 'T', []byte(recipe.Type))

	for _, field := range recipe.Fields {
		v := o.Fields[field.Name]
		encoded, err := encodeField(field, v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		var fieldBuf bytes.Buffer
		writeToken(&fieldBuf, 'N', []byte(field.Name))
		fieldBuf.Write(encoded)
		writeToken(&buf, 'F', fieldBuf.Bytes())
	}

	return buf.Bytes(), nil
}

// ObjectHashOf returns the ObjectHash of o's canonical form.
func ObjectHashOf(o *Object, recipe Recipe) (ObjectHash, error) {
	b, err := Serialize(o, recipe)
	if err != nil {
		return ObjectHash{}, err
	}
	return ObjectHash(hashBytes(b)), nil
}

// IdHashOf returns the IdHash of o's identifying subset, per recipe.
// Unversioned recipes have no identifying subset and always return an
// error — callers must check recipe.Versioned before calling this.
func IdHashOf(o *Object, recipe Recipe) (IdHash, error) {
	if !recipe.Versioned {
		return IdHash{}, fmt.Errorf("%w: type %q is not versioned", ErrRecipeRuleViolation, recipe.Type)
	}
	idRecipe := Recipe{Type: recipe.Type, Versioned: false, Fields: recipe.IdentifyingFields()}
	projected := project(o, recipe)
	b, err := Serialize(projected, idRecipe)
	if err != nil {
		return IdHash{}, err
	}
	return IdHash(hashBytes(b)), nil
}

func writeToken(buf *bytes.Buffer, tag byte, data []byte) {
	buf.WriteByte(tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func encodeField(field FieldRule, v any) ([]byte, error) {
	var buf bytes.Buffer
	switch field.Kind {
	case KindString:
		s, ok := v.(string)
		if v != nil && !ok {
			return nil, ErrRecipeRuleViolation
		}
		writeToken(&buf, 'S', []byte(s))

	case KindNumber:
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrForbiddenValue
		}
		writeToken(&buf, 'D', []byte(strconv.FormatFloat(f, 'g', -1, 64)))

	case KindBool:
		b, ok := v.(bool)
		if v != nil && !ok {
			return nil, ErrRecipeRuleViolation
		}
		text := "false"
		if b {
			text = "true"
		}
		writeToken(&buf, 'B', []byte(text))

	case KindBytes:
		bs, err := asBytes(v)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'X', bs)

	case KindRefObject, KindRefId, KindRefBlob, KindRefClob:
		h, err := asHash(v)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'R', []byte(h.String()))

	case KindOrderedList:
		items, err := encodeContainerItems(field.Item, v, false, false)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'L', items)

	case KindBag:
		items, err := encodeContainerItems(field.Item, v, true, false)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'G', items)

	case KindSet:
		items, err := encodeContainerItems(field.Item, v, true, true)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'E', items)

	case KindMap:
		items, err := encodeMap(field.Item, v)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'M', items)

	case KindNestedObject:
		nested, ok := v.(*Object)
		if v != nil && !ok {
			return nil, ErrRecipeRuleViolation
		}
		if nested == nil {
			writeToken(&buf, 'P', nil)
			break
		}
		nestedRecipe := Recipe{Type: field.NestedRecipe, Fields: nestedFieldsPlaceholder(nested)}
		encoded, err := Serialize(nested, nestedRecipe)
		if err != nil {
			return nil, err
		}
		writeToken(&buf, 'P', encoded)

	default:
		return nil, fmt.Errorf("%w: unknown field kind", ErrRecipeRuleViolation)
	}
	return buf.Bytes(), nil
}

// nestedFieldsPlaceholder lets a nested object serialize with whatever
// fields it actually carries when the caller has not pre-registered a
// recipe for the nested type. Callers that want strict nested-recipe
// validation should register the nested recipe and use Registry.Recipe to
// build the FieldRule.NestedRecipe lookup themselves before calling
// Serialize; this fallback only orders fields alphabetically so encoding
// stays deterministic.
func nestedFieldsPlaceholder(o *Object) []FieldRule {
	names := make([]string, 0, len(o.Fields))
	for name := range o.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]FieldRule, 0, len(names))
	for _, name := range names {
		fields = append(fields, FieldRule{Name: name, Kind: kindOf(o.Fields[name])})
	}
	return fields
}

func kindOf(v any) Kind {
	switch v.(type) {
	case string:
		return KindString
	case bool:
		return KindBool
	case []byte:
		return KindBytes
	case ObjectHash, IdHash, Hash:
		return KindRefObject
	case []any:
		return KindOrderedList
	case map[string]any:
		return KindMap
	case *Object:
		return KindNestedObject
	default:
		return KindNumber
	}
}

func encodeContainerItems(item *FieldRule, v any, sortItems bool, dedupe bool) ([]byte, error) {
	items, err := asSlice(v)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: container field missing item rule", ErrRecipeRuleViolation)
	}

	encoded := make([][]byte, 0, len(items))
	for _, it := range items {
		b, err := encodeField(*item, it)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, b)
	}

	if sortItems {
		sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })
	}
	if dedupe {
		encoded = dedupeSorted(encoded)
	}

	var buf bytes.Buffer
	for _, b := range encoded {
		writeToken(&buf, 'I', b)
	}
	return buf.Bytes(), nil
}

func dedupeSorted(items [][]byte) [][]byte {
	out := items[:0:0]
	for i, it := range items {
		if i > 0 && bytes.Equal(it, items[i-1]) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func encodeMap(item *FieldRule, v any) ([]byte, error) {
	m, err := asMap(v)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: map field missing item rule", ErrRecipeRuleViolation)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		val, err := encodeField(*item, m[k])
		if err != nil {
			return nil, err
		}
		var entry bytes.Buffer
		writeToken(&entry, 'K', []byte(k))
		entry.Write(val)
		writeToken(&buf, 'I', entry.Bytes())
	}
	return buf.Bytes(), nil
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, ErrRecipeRuleViolation
	}
}

func asBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		return nil, ErrRecipeRuleViolation
	}
}

func asSlice(v any) ([]any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return s, nil
	default:
		return nil, ErrRecipeRuleViolation
	}
}

func asMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	default:
		return nil, ErrRecipeRuleViolation
	}
}

func asHash(v any) (Hash, error) {
	switch h := v.(type) {
	case nil:
		return Hash{}, nil
	case Hash:
		return h, nil
	case ObjectHash:
		return Hash(h), nil
	case IdHash:
		return Hash(h), nil
	case string:
		return ParseHash(h)
	default:
		return Hash{}, fmt.Errorf("%w: reference value must be a hash", ErrRecipeRuleViolation)
	}
}
