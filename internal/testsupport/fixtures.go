package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"video2notes/internal/config"
	"video2notes/internal/runstore"
)

// WriteFile creates path (and its parents) holding size filler bytes, at
// least one. Tests use it for placeholder videos that are never decoded.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()
	WriteText(t, path, string(bytes.Repeat([]byte{'B'}, max(size, 1))))
}

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MustOpenStore opens the run history database under cfg's work dir and
// closes it when the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()
	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("open run store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
