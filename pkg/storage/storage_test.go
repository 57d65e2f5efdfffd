package storage

import (
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestAtomicWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "record.json")

	want := record{Name: "todo", Count: 3}
	if err := AtomicWriteJSON(path, want); err != nil {
		t.Fatalf("AtomicWriteJSON failed: %v", err)
	}

	var got record
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestAtomicWriteJSONOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.json")

	if err := AtomicWriteJSON(path, record{Name: "a", Count: 1}); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteJSON(path, record{Name: "b", Count: 2}); err != nil {
		t.Fatal(err)
	}

	var got record
	if err := ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "b" || got.Count != 2 {
		t.Fatalf("expected overwritten contents, got %+v", got)
	}

	// No leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	dir := t.TempDir()
	var got record
	if err := ReadJSON(filepath.Join(dir, "missing.json"), &got); err == nil {
		t.Fatal("expected error reading missing file")
	}
}
