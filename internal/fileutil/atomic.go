// Package fileutil provides atomic file replacement for the persisted
// dataset and mapping store. Writers stage a complete temp file in the
// destination directory, then swap it into place with a rename so a
// crash mid-write never leaves a partially written file behind.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StageJSON writes v as indented JSON to a temp file beside path and
// returns the temp file's name. Nothing at path is touched.
func StageJSON(path string, v any) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", tmp, err)
	}
	return tmp, nil
}

// Commit renames a staged temp file onto its destination.
func Commit(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Discard removes a staged temp file, ignoring errors; used on the
// abort path where the original destination must stay untouched.
func Discard(tmp string) {
	if tmp != "" {
		_ = os.Remove(tmp)
	}
}

// WriteJSON stages and immediately commits in one step, for writers
// that do not coordinate with a second file.
func WriteJSON(path string, v any) error {
	tmp, err := StageJSON(path, v)
	if err != nil {
		return err
	}
	return Commit(tmp, path)
}
