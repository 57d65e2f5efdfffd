package idmint

import "testing"

func TestNextUnique(t *testing.T) {
	m := New(4)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := m.Next("tc_")
		if seen[id] {
			t.Fatalf("duplicate id minted: %s", id)
		}
		seen[id] = true
	}
}

func TestNextHasPrefix(t *testing.T) {
	m := New(4)
	id := m.Next("bg_")
	if len(id) < len("bg_") || id[:3] != "bg_" {
		t.Fatalf("expected prefix bg_, got %s", id)
	}
}
