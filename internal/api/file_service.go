package api

import (
	"context"

	"mediapipe/internal/store"
)

// FileReader abstracts the record queries needed by the API.
type FileReader interface {
	GetFile(ctx context.Context, id string) (*store.File, error)
	ListResources(ctx context.Context, query store.ResourceQuery) (store.ResourcePage, error)
	Stats(ctx context.Context) (map[store.Status]int, error)
}

// FileService exposes read-only record operations returning API DTOs.
type FileService struct {
	store FileReader
}

// NewFileService constructs a FileService around the provided reader.
func NewFileService(reader FileReader) *FileService {
	if reader == nil {
		return nil
	}
	return &FileService{store: reader}
}

// Describe fetches a single record's public view. It returns nil when the
// record does not exist.
func (s *FileService) Describe(ctx context.Context, id string) (*store.PublicFile, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	file, err := s.store.GetFile(ctx, id)
	if err != nil || file == nil {
		return nil, err
	}
	view := file.Public()
	return &view, nil
}

// List returns one page of records.
func (s *FileService) List(ctx context.Context, query store.ResourceQuery) (ResourceListResponse, error) {
	if s == nil || s.store == nil {
		return ResourceListResponse{Items: []store.PublicFile{}}, nil
	}
	page, err := s.store.ListResources(ctx, query)
	if err != nil {
		return ResourceListResponse{}, err
	}
	return FromResourcePage(page), nil
}

// Stats returns record counts keyed by status string.
func (s *FileService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeFileStats(stats), nil
}
