package domain

import (
	"errors"
	"testing"
	"time"
)

func TestAddressIdentityEquality(t *testing.T) {
	a := Collection("players", Eq("guildId", "g1"))
	b := Collection("players", Eq("guildId", "g1"))
	if !a.Equal(b) {
		t.Fatalf("expected structurally equal addresses to be identity-equal")
	}
	if a.Equal(Collection("players", Eq("guildId", "g2"))) {
		t.Fatalf("different constraint value must not be equal")
	}
	if a.Equal(Collection("players", Eq("guildId", "g1"), Eq("level", 2))) {
		t.Fatalf("different constraint set must not be equal")
	}
	if Doc("guilds", "g1").Equal(Doc("guilds", "g2")) {
		t.Fatalf("different ids must not be equal")
	}
	if Doc("guilds", "g1").Equal(Doc("players", "g1")) {
		t.Fatalf("different paths must not be equal")
	}
	if Collection("guilds").Equal(Doc("guilds", "x")) {
		t.Fatalf("collection and document must not be equal")
	}
}

func TestAddressEqualityIsStructural(t *testing.T) {
	split := Collection("players", Eq("a", 1), Eq("b", 2))
	joined := Collection("players", Eq("a == 1&b", 2))
	if split.Equal(joined) {
		t.Fatalf("constraint lists with different fields must not be equal")
	}
	if split.Key() == joined.Key() {
		t.Fatalf("distinct constraint lists share key %q", split.Key())
	}
	if Collection("players", Eq("a", 1), Eq("b", 2)).Equal(Collection("players", Eq("b", 2), Eq("a", 1))) {
		t.Fatalf("constraint order is part of the identity")
	}
	if Collection("players", Eq("tags", "x")).Equal(Collection("players", Contains("tags", "x"))) {
		t.Fatalf("different operators must not be equal")
	}
	if !Collection("players", In("id", []any{"p1", "p2"})).Equal(Collection("players", In("id", []string{"p1", "p2"}))) {
		t.Fatalf("list values decoded from JSON should equal native slices")
	}
}

func TestAddressKeyNormalizesNumbers(t *testing.T) {
	if Collection("players", Eq("level", 2)).Key() != Collection("players", Eq("level", float64(2))).Key() {
		t.Fatalf("int and float64 of the same value should share a key")
	}
}

func TestAddressValidate(t *testing.T) {
	cases := []struct {
		name string
		addr Address
		ok   bool
	}{
		{"doc", Doc("guilds", "g1"), true},
		{"collection", Collection("players", Eq("guildId", "g1")), true},
		{"empty path", Address{ID: "x"}, false},
		{"id and constraints", Address{Path: "p", ID: "x", Constraints: []Constraint{Eq("a", 1)}}, false},
		{"bad op", Collection("p", Constraint{Field: "a", Op: "<"}), false},
		{"in needs list", Collection("p", In("a", "x")), false},
		{"missing field", Collection("p", Constraint{Op: OpEqual}), false},
	}
	for _, c := range cases {
		err := c.addr.Validate()
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("%s: expected ErrInvalidAddress, got %v", c.name, err)
		}
	}
}

func TestConstraintMatches(t *testing.T) {
	data := Fields{"guildId": "g1", "level": float64(3), "tags": []any{"tank", "healer"}}
	cases := []struct {
		c    Constraint
		want bool
	}{
		{Eq("guildId", "g1"), true},
		{Eq("guildId", "g2"), false},
		{Eq("level", 3), true},
		{In("level", []int{1, 3}), true},
		{In("level", []int{1, 2}), false},
		{Contains("tags", "healer"), true},
		{Contains("tags", "mage"), false},
		{Eq("missing", nil), false},
		{IDIn([]string{"p1", "p2"}), true},
		{IDIn([]string{"p9"}), false},
	}
	for _, c := range cases {
		if got := c.c.Matches("p1", data); got != c.want {
			t.Fatalf("%s: got %v want %v", c.c, got, c.want)
		}
	}
	if !Doc("players", "p1").Matches("p1", nil) || Doc("players", "p1").Matches("p2", nil) {
		t.Fatalf("document address matching by id failed")
	}
}

func TestCloneFieldsIsDeep(t *testing.T) {
	orig := Fields{"nested": map[string]any{"a": 1}, "list": []any{"x"}, "ids": []string{"a"}}
	cp := CloneFields(orig)
	cp["nested"].(map[string]any)["a"] = 2
	cp["list"].([]any)[0] = "y"
	cp["ids"].([]string)[0] = "b"
	if orig["nested"].(map[string]any)["a"] != 1 || orig["list"].([]any)[0] != "x" || orig["ids"].([]string)[0] != "a" {
		t.Fatalf("clone shares nested state: %v", orig)
	}
	if CloneFields(nil) != nil {
		t.Fatalf("nil clone should stay nil")
	}
}

func TestValuesEqualTimes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !ValuesEqual(ts, ts.In(time.FixedZone("x", 3600))) {
		t.Fatalf("same instant in different zones should compare equal")
	}
}

func TestIDsSkipsMissing(t *testing.T) {
	ids := IDs([]Snapshot{{ID: "a", Exists: true}, {ID: "b"}, {ID: "c", Exists: true}})
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestDesyncedErrorUnwraps(t *testing.T) {
	err := error(&DesyncedError{Op: "read", Address: Doc("guilds", "g1"), Err: ErrDesyncedRead})
	if !errors.Is(err, ErrDesyncedRead) {
		t.Fatalf("expected errors.Is to match ErrDesyncedRead")
	}
	var de *DesyncedError
	if !errors.As(err, &de) || de.Address.ID != "g1" {
		t.Fatalf("expected DesyncedError with address, got %v", err)
	}
}
