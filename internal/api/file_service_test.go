package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediapipe/internal/store"
)

type mockFileReader struct {
	files    []*store.File
	stats    map[store.Status]int
	err      error
	lastList store.ResourceQuery
}

func (m *mockFileReader) GetFile(_ context.Context, id string) (*store.File, error) {
	for _, f := range m.files {
		if f.ID == id {
			return f, m.err
		}
	}
	return nil, m.err
}

func (m *mockFileReader) ListResources(_ context.Context, query store.ResourceQuery) (store.ResourcePage, error) {
	m.lastList = query
	return store.ResourcePage{Items: m.files, Total: len(m.files), Page: 1, Limit: 20}, m.err
}

func (m *mockFileReader) Stats(context.Context) (map[store.Status]int, error) {
	return m.stats, m.err
}

func TestFileService_Describe(t *testing.T) {
	desc := "hello"
	svc := NewFileService(&mockFileReader{files: []*store.File{{
		ID:                "f1",
		Kind:              store.KindAudio,
		Status:            store.StatusSafe,
		Description:       &desc,
		ExternalStorageID: "secret-id",
		CreatedAt:         time.Now().UTC(),
	}}})

	view, err := svc.Describe(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if view == nil || view.ID != "f1" || view.Description == nil || *view.Description != "hello" {
		t.Fatalf("unexpected view %+v", view)
	}

	missing, err := svc.Describe(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil view for missing record, got %+v %v", missing, err)
	}
}

func TestFileService_ListAndStats(t *testing.T) {
	reader := &mockFileReader{
		files: []*store.File{{ID: "a", Kind: store.KindImage}, {ID: "b", Kind: store.KindImage}},
		stats: map[store.Status]int{store.StatusSafe: 2},
	}
	svc := NewFileService(reader)

	page, err := svc.List(context.Background(), store.ResourceQuery{Kind: store.KindImage, Limit: 5})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 2 || reader.lastList.Limit != 5 {
		t.Fatalf("unexpected page %+v (query %+v)", page, reader.lastList)
	}

	counts, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if counts["safe"] != 2 || counts["processing"] != 0 || len(counts) != 3 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestFileService_Errors(t *testing.T) {
	sentinel := errors.New("boom")
	svc := NewFileService(&mockFileReader{err: sentinel})
	if _, err := svc.List(context.Background(), store.ResourceQuery{}); !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
	if NewFileService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
}
