// Copyright 2025 OneCore Project

package canon

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// PeekType reads only the leading type token of a canonical serialization,
// without needing a Recipe, so a reader can look up the right recipe
// before parsing the rest (spec.md §4.4: recipe-name-driven decode).
func PeekType(data []byte) (string, error) {
	tag, payload, _, err := readToken(data)
	if err != nil {
		return "", err
	}
	if tag != 'T' {
		return "", fmt.Errorf("%w: expected type token", ErrRecipeRuleViolation)
	}
	return string(payload), nil
}

// Deserialize is the inverse of Serialize: it parses data against recipe
// and rebuilds an Object. Because Serialize always emits every field of
// recipe.Fields in order, Deserialize walks that same order to line up
// tokens with field rules, regardless of the recipe's declared type name
// — callers performing up-conversion pass the legacy recipe here and
// rename/default the result afterwards (spec.md §4.4).
func Deserialize(data []byte, recipe Recipe) (*Object, error) {
	tag, typeBytes, rest, err := readToken(data)
	if err != nil {
		return nil, err
	}
	if tag != 'T' {
		return nil, fmt.Errorf("%w: expected type token", ErrRecipeRuleViolation)
	}

	fields := make(map[string]any, len(recipe.Fields))
	for _, fieldRule := range recipe.Fields {
		if len(rest) == 0 {
			return nil, fmt.Errorf("%w: missing field %q", ErrRecipeRuleViolation, fieldRule.Name)
		}
		fTag, fPayload, next, err := readToken(rest)
		if err != nil {
			return nil, err
		}
		if fTag != 'F' {
			return nil, fmt.Errorf("%w: expected field token", ErrRecipeRuleViolation)
		}
		rest = next

		nameTag, nameBytes, fRest, err := readToken(fPayload)
		if err != nil {
			return nil, err
		}
		if nameTag != 'N' || string(nameBytes) != fieldRule.Name {
			return nil, fmt.Errorf("%w: field name mismatch", ErrRecipeRuleViolation)
		}

		valTag, valPayload, _, err := readToken(fRest)
		if err != nil {
			return nil, err
		}
		v, err := decodeField(fieldRule, valTag, valPayload)
		if err != nil {
			return nil, err
		}
		fields[fieldRule.Name] = v
	}

	return &Object{Type: string(typeBytes), Fields: fields}, nil
}

// readToken reads one tag+length-prefixed token from the front of data and
// returns the tag, its payload, and the unconsumed remainder.
func readToken(data []byte) (tag byte, payload []byte, rest []byte, err error) {
	if len(data) < 5 {
		return 0, nil, nil, fmt.Errorf("%w: truncated token", ErrRecipeRuleViolation)
	}
	tag = data[0]
	length := binary.BigEndian.Uint32(data[1:5])
	if uint32(len(data)-5) < length {
		return 0, nil, nil, fmt.Errorf("%w: truncated token payload", ErrRecipeRuleViolation)
	}
	payload = data[5 : 5+length]
	rest = data[5+length:]
	return tag, payload, rest, nil
}

func decodeField(field FieldRule, tag byte, payload []byte) (any, error) {
	switch field.Kind {
	case KindString:
		if tag != 'S' {
			return nil, ErrRecipeRuleViolation
		}
		return string(payload), nil

	case KindNumber:
		if tag != 'D' {
			return nil, ErrRecipeRuleViolation
		}
		f, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecipeRuleViolation, err)
		}
		return f, nil

	case KindBool:
		if tag != 'B' {
			return nil, ErrRecipeRuleViolation
		}
		return string(payload) == "true", nil

	case KindBytes:
		if tag != 'X' {
			return nil, ErrRecipeRuleViolation
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil

	case KindRefObject, KindRefId, KindRefBlob, KindRefClob:
		if tag != 'R' {
			return nil, ErrRecipeRuleViolation
		}
		h, err := ParseHash(string(payload))
		if err != nil {
			return nil, err
		}
		return h, nil

	case KindOrderedList, KindBag, KindSet:
		wantTag := byte('L')
		if field.Kind == KindBag {
			wantTag = 'G'
		} else if field.Kind == KindSet {
			wantTag = 'E'
		}
		if tag != wantTag {
			return nil, ErrRecipeRuleViolation
		}
		return decodeContainerItems(field.Item, payload)

	case KindMap:
		if tag != 'M' {
			return nil, ErrRecipeRuleViolation
		}
		return decodeMap(field.Item, payload)

	case KindNestedObject:
		if tag != 'P' {
			return nil, ErrRecipeRuleViolation
		}
		if len(payload) == 0 {
			return (*Object)(nil), nil
		}
		innerTag, innerTypeBytes, _, err := readToken(payload)
		if err != nil {
			return nil, err
		}
		if innerTag != 'T' {
			return nil, ErrRecipeRuleViolation
		}
		nestedRecipe := Recipe{Type: string(innerTypeBytes), Fields: nil}
		return decodeNestedByNames(payload, nestedRecipe)

	default:
		return nil, fmt.Errorf("%w: unknown field kind", ErrRecipeRuleViolation)
	}
}

// decodeNestedByNames decodes a nested object whose field set is not known
// ahead of time (the symmetric case to Serialize's nestedFieldsPlaceholder):
// it reads every remaining F token and recovers each field's name and kind
// from its own tokens, since encodeField tags every value with its kind.
func decodeNestedByNames(data []byte, recipe Recipe) (*Object, error) {
	_, _, rest, err := readToken(data) // consume the T token
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	for len(rest) > 0 {
		fTag, fPayload, next, err := readToken(rest)
		if err != nil {
			return nil, err
		}
		if fTag != 'F' {
			return nil, ErrRecipeRuleViolation
		}
		rest = next

		nameTag, nameBytes, fRest, err := readToken(fPayload)
		if err != nil {
			return nil, err
		}
		if nameTag != 'N' {
			return nil, ErrRecipeRuleViolation
		}

		valTag, valPayload, _, err := readToken(fRest)
		if err != nil {
			return nil, err
		}
		v, err := decodeByTag(valTag, valPayload)
		if err != nil {
			return nil, err
		}
		fields[string(nameBytes)] = v
	}
	return &Object{Type: recipe.Type, Fields: fields}, nil
}

// decodeByTag recovers a value from its self-describing tag when no field
// rule is available (used only for nested objects built via
// nestedFieldsPlaceholder).
func decodeByTag(tag byte, payload []byte) (any, error) {
	switch tag {
	case 'S':
		return string(payload), nil
	case 'D':
		return strconv.ParseFloat(string(payload), 64)
	case 'B':
		return payload != nil && string(payload) == "true", nil
	case 'X':
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case 'R':
		return ParseHash(string(payload))
	case 'P':
		if len(payload) == 0 {
			return (*Object)(nil), nil
		}
		_, typeBytes, _, err := readToken(payload)
		if err != nil {
			return nil, err
		}
		return decodeNestedByNames(payload, Recipe{Type: string(typeBytes)})
	default:
		return nil, fmt.Errorf("%w: cannot decode untyped container element", ErrRecipeRuleViolation)
	}
}

func decodeContainerItems(item *FieldRule, payload []byte) ([]any, error) {
	out := []any{}
	rest := payload
	for len(rest) > 0 {
		tag, itemPayload, next, err := readToken(rest)
		if err != nil {
			return nil, err
		}
		if tag != 'I' {
			return nil, ErrRecipeRuleViolation
		}
		rest = next

		if item == nil {
			return nil, fmt.Errorf("%w: container field missing item rule", ErrRecipeRuleViolation)
		}
		innerTag, innerPayload, _, err := readToken(itemPayload)
		if err != nil {
			return nil, err
		}
		v, err := decodeField(*item, innerTag, innerPayload)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeMap(item *FieldRule, payload []byte) (map[string]any, error) {
	out := map[string]any{}
	rest := payload
	for len(rest) > 0 {
		tag, entryPayload, next, err := readToken(rest)
		if err != nil {
			return nil, err
		}
		if tag != 'I' {
			return nil, ErrRecipeRuleViolation
		}
		rest = next

		keyTag, keyBytes, entryRest, err := readToken(entryPayload)
		if err != nil {
			return nil, err
		}
		if keyTag != 'K' {
			return nil, ErrRecipeRuleViolation
		}

		if item == nil {
			return nil, fmt.Errorf("%w: map field missing item rule", ErrRecipeRuleViolation)
		}
		valTag, valPayload, _, err := readToken(entryRest)
		if err != nil {
			return nil, err
		}
		v, err := decodeField(*item, valTag, valPayload)
		if err != nil {
			return nil, err
		}
		out[string(keyBytes)] = v
	}
	return out, nil
}
