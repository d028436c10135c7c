// Copyright 2025 OneCore Project

package canon

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func bodyTemperatureRecipe() Recipe {
	return Recipe{
		Type: "BodyTemperature",
		Fields: []FieldRule{
			{Name: "temperature", Kind: KindNumber},
		},
	}
}

func personRecipe() Recipe {
	return Recipe{
		Type:      "Person",
		Versioned: true,
		Fields: []FieldRule{
			{Name: "email", Kind: KindString, Identifying: true},
			{Name: "name", Kind: KindString},
			{Name: "tags", Kind: KindSet, Item: &FieldRule{Kind: KindString}},
		},
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	recipe := bodyTemperatureRecipe()
	obj := NewObject("BodyTemperature", map[string]any{"temperature": 37.0})

	b, err := Serialize(obj, recipe)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	back, err := Deserialize(b, recipe)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	if diff := cmp.Diff(obj.Fields, back.Fields); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	h1, err := ObjectHashOf(obj, recipe)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h2, err := ObjectHashOf(back, recipe)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected hash(O) == hash(parse(serialize(O))), got %s != %s", h1, h2)
	}
}

func TestCanonicalFormStableAcrossFieldOrder(t *testing.T) {
	recipe := Recipe{
		Type: "Pair",
		Fields: []FieldRule{
			{Name: "a", Kind: KindNumber},
			{Name: "b", Kind: KindNumber},
		},
	}

	o1 := NewObject("Pair", map[string]any{"a": 1.0, "b": 2.0})
	o2 := NewObject("Pair", map[string]any{"b": 2.0, "a": 1.0})

	b1, err := Serialize(o1, recipe)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	b2, err := Serialize(o2, recipe)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	if string(b1) != string(b2) {
		t.Errorf("expected byte-identical serialization regardless of map construction order")
	}
}

func TestSerializeRejectsNaNAndInf(t *testing.T) {
	recipe := bodyTemperatureRecipe()

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		obj := NewObject("BodyTemperature", map[string]any{"temperature": v})
		if _, err := Serialize(obj, recipe); err == nil {
			t.Errorf("expected ErrForbiddenValue for %v", v)
		}
	}
}

func TestIdHashStableAcrossVersions(t *testing.T) {
	recipe := personRecipe()

	v1 := NewObject("Person", map[string]any{
		"email": "a@example.com",
		"name":  "Alice",
		"tags":  []any{"friend"},
	})
	v2 := NewObject("Person", map[string]any{
		"email": "a@example.com",
		"name":  "Alice Smith", // non-identifying field changed
		"tags":  []any{"friend", "colleague"},
	})

	id1, err := IdHashOf(v1, recipe)
	if err != nil {
		t.Fatalf("id hash failed: %v", err)
	}
	id2, err := IdHashOf(v2, recipe)
	if err != nil {
		t.Fatalf("id hash failed: %v", err)
	}

	if id1 != id2 {
		t.Errorf("expected stable IdHash across versions, got %s != %s", id1, id2)
	}

	objHash1, _ := ObjectHashOf(v1, recipe)
	objHash2, _ := ObjectHashOf(v2, recipe)
	if objHash1 == objHash2 {
		t.Errorf("expected distinct ObjectHash for distinct versions")
	}
}

func TestSetFieldDeduplicatesAndSorts(t *testing.T) {
	recipe := personRecipe()
	o1 := NewObject("Person", map[string]any{
		"email": "a@example.com", "name": "Alice",
		"tags": []any{"b", "a", "b"},
	})
	o2 := NewObject("Person", map[string]any{
		"email": "a@example.com", "name": "Alice",
		"tags": []any{"a", "b"},
	})

	h1, err := ObjectHashOf(o1, recipe)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h2, err := ObjectHashOf(o2, recipe)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected set field to dedupe and sort, got %s != %s", h1, h2)
	}
}

func TestParseHashValidatesFormat(t *testing.T) {
	if _, err := ParseHash("not-a-hash"); err == nil {
		t.Errorf("expected ErrMalformedHash for invalid input")
	}
	valid := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	if _, err := ParseHash(valid); err != nil {
		t.Errorf("expected valid hash to parse, got %v", err)
	}
}
