package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"mediapipe/internal/config"
	"mediapipe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewFile creates a processing record of the given kind.
func NewFile(t testing.TB, st *store.Store, kind store.Kind, stagingPath string) *store.File {
	t.Helper()

	file, err := st.CreateFile(context.Background(), store.NewFile{
		ID:           uuid.NewString(),
		Kind:         kind,
		MediaType:    string(kind) + "/test",
		OriginalName: "upload.bin",
		StagingPath:  stagingPath,
	})
	if err != nil {
		t.Fatalf("store.CreateFile: %v", err)
	}
	return file
}
