package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteStaged writes data under dir/name, creating dir as needed, and returns
// the full path. A non-zero age backdates the file's modification time.
func WriteStaged(t testing.TB, dir, name string, data []byte, age time.Duration) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if age > 0 {
		past := time.Now().Add(-age)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes %s: %v", path, err)
		}
	}
	return path
}
