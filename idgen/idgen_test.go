package idgen

import (
	"slices"
	"strings"
	"testing"
)

func TestUUIDv7_SortsByCreation(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = gen()
	}
	if !slices.IsSorted(ids) {
		t.Fatal("UUIDv7 ids not in creation order")
	}
	if len(slices.Compact(slices.Clone(ids))) != len(ids) {
		t.Fatal("duplicate ids")
	}
	if len(ids[0]) != 36 || strings.Count(ids[0], "-") != 4 {
		t.Fatalf("not a UUID: %q", ids[0])
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("ses_", Default)()
	if !strings.HasPrefix(id, "ses_") || len(id) != 4+36 {
		t.Fatalf("Prefixed: %q", id)
	}
}

func TestParse(t *testing.T) {
	id := Prefixed("evt_", Default)()
	got, err := Parse(id[:4] + strings.ToUpper(id[4:]))
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("Parse = %q, want %q", got, id)
	}
	if _, err := Parse(New()); err != nil {
		t.Fatalf("bare uuid: %v", err)
	}
	if _, err := Parse("ses_not-a-uuid"); err == nil {
		t.Fatal("invalid id accepted")
	}
}
