package staging_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediapipe/internal/logging"
	"mediapipe/internal/services"
	"mediapipe/internal/staging"
	"mediapipe/internal/testsupport"
)

func TestWriteIsAtomicAndNamedByID(t *testing.T) {
	area := staging.New(filepath.Join(t.TempDir(), "staging"))

	path, size, err := area.Write("abc", ".png", strings.NewReader("image-bytes"), 0)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(area.Dir(), "abc.png") || size != int64(len("image-bytes")) {
		t.Fatalf("unexpected result %q %d", path, size)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("unexpected staged contents %q %v", data, err)
	}
	files, err := staging.ListFiles(area.Dir())
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "abc.png" {
		t.Fatalf("expected only the final file, got %+v", files)
	}
}

func TestWriteRejectsOversizedUpload(t *testing.T) {
	area := staging.New(t.TempDir())

	_, _, err := area.Write("big", ".bin", bytes.NewReader(make([]byte, 11)), 10)
	if !errors.Is(err, staging.ErrTooLarge) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected size error, got %v", err)
	}
	entries, _ := os.ReadDir(area.Dir())
	if len(entries) != 0 {
		t.Fatalf("expected no leftovers, got %d entries", len(entries))
	}

	if _, _, err := area.Write("fits", ".bin", bytes.NewReader(make([]byte, 10)), 10); err != nil {
		t.Fatalf("expected upload at the limit to succeed: %v", err)
	}
}

func TestExistsAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteStaged(t, dir, "f1.m4a", []byte("a"), 0)

	if ok, err := staging.Exists(path); err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := staging.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := staging.Exists(path); ok {
		t.Fatal("expected file removed")
	}
	if err := staging.Remove(path); err != nil {
		t.Fatalf("expected removing a missing file to succeed, got %v", err)
	}
	if ok, err := staging.Exists(""); ok || err != nil {
		t.Fatalf("empty path should not exist: %v %v", ok, err)
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name, mediaType, want string
	}{
		{"photo.JPG", "image/jpeg", ".jpg"},
		{"voice", "application/x-mediapipe-unknown", ""},
		{"", "image/png", ".png"},
		{"weird.???", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := staging.Extension(tt.name, tt.mediaType); got != tt.want {
			t.Fatalf("Extension(%q, %q) = %q, want %q", tt.name, tt.mediaType, got, tt.want)
		}
	}
}

func TestCleanOrphanedKeepsKnownAndRecent(t *testing.T) {
	dir := t.TempDir()
	known := testsupport.WriteStaged(t, dir, "known.png", []byte("k"), 3*time.Hour)
	orphan := testsupport.WriteStaged(t, dir, "orphan.png", []byte("o"), 3*time.Hour)
	recent := testsupport.WriteStaged(t, dir, "recent.png", []byte("r"), 0)
	temp := testsupport.WriteStaged(t, dir, ".upload-123", []byte("t"), 3*time.Hour)

	var asked []string
	lookup := func(_ context.Context, ids []string) (map[string]struct{}, error) {
		asked = append(asked, ids...)
		return map[string]struct{}{"known": {}}, nil
	}

	result := staging.CleanOrphaned(context.Background(), dir, time.Hour, lookup, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors %+v", result.Errors)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("expected orphan and temp removed, got %v", result.Removed)
	}
	for _, path := range []string{orphan, temp} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", path)
		}
	}
	for _, path := range []string{known, recent} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
	if len(asked) != 2 {
		t.Fatalf("expected only stale ids looked up, got %v", asked)
	}
}

func TestCleanOrphanedLookupFailureKeepsFiles(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteStaged(t, dir, "maybe.png", []byte("m"), 3*time.Hour)

	lookup := func(context.Context, []string) (map[string]struct{}, error) {
		return nil, errors.New("database locked")
	}
	result := staging.CleanOrphaned(context.Background(), dir, time.Hour, lookup, logging.NewNop())
	if len(result.Errors) != 1 || len(result.Removed) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file kept: %v", err)
	}
}

func TestCleanOrphanedMissingDir(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := staging.CleanOrphaned(context.Background(), dir, time.Hour, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Fatalf("expected empty result for %q", dir)
		}
	}
}
