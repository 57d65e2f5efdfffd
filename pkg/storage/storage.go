// Package storage provides the single persistence primitive used
// throughout jcoded: atomic JSON writes via temp-file-plus-rename, so
// the on-disk entities (session snapshots and background-task status
// files) are crash-safe by construction rather than by ad-hoc save/load
// discipline.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteJSON marshals value as indented JSON and writes it to path
// by first writing to "<path>.tmp" then renaming over path. Rename is
// atomic on the same filesystem, so readers never observe a partially
// written file: they see either the previous contents or the new ones.
// Parent directories are created as needed. A crash between the temp
// write and the rename leaves a harmless ".tmp" leftover.
func AtomicWriteJSON(path string, value any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create parent dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", path, err)
	}

	tmp, err := os.OpenFile(path+".tmp", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: rename temp file into %s: %w", path, err)
	}

	return nil
}

// ReadJSON reads path and unmarshals it into dest. Callers that poll a
// file that may be mid-write (e.g. background-task status files) should
// tolerate os.IsNotExist and retry or skip, per spec §3.
func ReadJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("storage: unmarshal %s: %w", path, err)
	}
	return nil
}
