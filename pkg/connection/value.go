// Copyright 2025 OneCore Project
//
// Connections exchange plain JSON, with one JavaScript-flavored wrinkle
// carried over from the original protocol: a value can be the literal
// "undefined", which encoding/json has no native way to express. We encode
// it as a one-field sentinel object so the far side can tell "absent key"
// apart from "explicitly undefined" (spec.md §4.8).

package connection

import (
	"encoding/json"
	"math"
	"reflect"
)

// undefinedSentinel is the wire form of Undefined.
const undefinedSentinel = "$__undefined"

type undefinedMarker struct {
	Marker bool `json:"$__undefined"`
}

// Undefined is a distinguished value a caller can place in a message to
// mean "JavaScript undefined", distinct from Go's nil/JSON null.
var Undefined = undefinedMarker{Marker: true}

// encodeValue renders v as the bytes to place in a Frame's Data field,
// rejecting values with no faithful wire representation.
func encodeValue(v any) (json.RawMessage, error) {
	if err := checkSendable(v); err != nil {
		return nil, err
	}
	if v == Undefined {
		return json.Marshal(undefinedMarker{Marker: true})
	}
	return json.Marshal(v)
}

// decodeValue unmarshals raw into out. The undefined sentinel is not
// treated specially here; IsUndefined detects it.
func decodeValue(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}

// IsUndefined reports whether raw is the undefined sentinel object.
func IsUndefined(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[undefinedSentinel]
	return ok && len(m) == 1
}

// checkSendable walks v and rejects NaN, +/-Inf, and function/channel
// values, none of which JSON (or the receiving end) can represent.
func checkSendable(v any) error {
	switch x := v.(type) {
	case float32:
		return checkFloat(float64(x))
	case float64:
		return checkFloat(x)
	case []any:
		for _, item := range x {
			if err := checkSendable(item); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, item := range x {
			if err := checkSendable(item); err != nil {
				return err
			}
		}
	default:
		if v != nil {
			switch reflect.ValueOf(v).Kind() {
			case reflect.Func, reflect.Chan:
				return ErrUnsendableValue
			}
		}
	}
	return nil
}

func checkFloat(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrUnsendableValue
	}
	return nil
}
