package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediapipe/internal/services"
)

// CreateFile inserts a new record in the processing state.
func (s *Store) CreateFile(ctx context.Context, nf NewFile) (*File, error) {
	if strings.TrimSpace(nf.ID) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create file", "id is required", nil)
	}
	if !nf.Kind.Valid() {
		return nil, services.Wrap(services.ErrValidation, "store", "create file", fmt.Sprintf("unknown kind %q", nf.Kind), nil)
	}
	timestamp := formatTime(s.now())

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO files (
            id, kind, status, media_type, original_name, staging_path,
            enqueued_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nf.ID,
		nf.Kind,
		StatusProcessing,
		nullableString(nf.MediaType),
		nullableString(nf.OriginalName),
		nullableString(nf.StagingPath),
		timestamp,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}

	return s.GetFile(ctx, nf.ID)
}

// GetFile fetches a record by identifier. It returns nil, nil when absent.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// ApplyCreationResult persists the upload outcome of the file-creation stage.
func (s *Store) ApplyCreationResult(ctx context.Context, id string, result CreationResult) error {
	if strings.TrimSpace(result.URL) == "" {
		return services.Wrap(services.ErrValidation, "store", "apply creation result", "url is required", nil)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE files SET
            url = ?,
            blurred_url = ?,
            needs_external_cleanup = 1,
            external_storage_id = ?,
            external_resource_kind = ?,
            status = CASE WHEN ? = 1 AND status = ? THEN ? ELSE status END,
            staging_path = CASE WHEN ? = 1 THEN staging_path ELSE NULL END,
            updated_at = ?
        WHERE id = ?`,
		result.URL,
		nullableString(result.BlurredURL),
		nullableString(result.ExternalStorageID),
		nullableString(result.ExternalResourceKind),
		boolToInt(result.MarkSafe), StatusProcessing, StatusSafe,
		boolToInt(result.KeepStaging),
		formatTime(s.now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("apply creation result: %w", err)
	}
	return requireRow(res)
}

// ApplyModerationVerdict settles status once. It reports false when the record
// already carries a terminal status, leaving it untouched.
func (s *Store) ApplyModerationVerdict(ctx context.Context, id string, status Status) (bool, error) {
	if !status.Terminal() {
		return false, services.Wrap(services.ErrValidation, "store", "apply moderation verdict", fmt.Sprintf("status %q is not terminal", status), nil)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status,
		formatTime(s.now()),
		id,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("apply moderation verdict: %w", err)
	}
	return s.appliedOrMissing(ctx, id, res)
}

// ApplyTranscription sets the description once. It reports false when a
// description already exists.
func (s *Store) ApplyTranscription(ctx context.Context, id string, description string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE files SET description = ?, staging_path = NULL, updated_at = ?
        WHERE id = ? AND description IS NULL`,
		description,
		formatTime(s.now()),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("apply transcription: %w", err)
	}
	return s.appliedOrMissing(ctx, id, res)
}

func (s *Store) appliedOrMissing(ctx context.Context, id string, res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	file, err := s.GetFile(ctx, id)
	if err != nil {
		return false, err
	}
	if file == nil {
		return false, ErrFileNotFound
	}
	return false, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ListResources returns a page of records, newest first.
func (s *Store) ListResources(ctx context.Context, query ResourceQuery) (ResourcePage, error) {
	query = query.normalized()

	var (
		clauses []string
		args    []any
	)
	if query.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, query.Kind)
	}
	if query.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, query.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	page := ResourcePage{Page: query.Page, Limit: query.Limit}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM files`+where, args...).Scan(&page.Total); err != nil {
		return ResourcePage{}, fmt.Errorf("count resources: %w", err)
	}

	pageArgs := append(append([]any{}, args...), query.Limit, (query.Page-1)*query.Limit)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return ResourcePage{}, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return ResourcePage{}, fmt.Errorf("scan resource: %w", err)
		}
		page.Items = append(page.Items, file)
	}
	return page, rows.Err()
}

// DeleteFile removes a record and returns it so the caller can release
// remote assets. It returns nil, nil when the record does not exist.
func (s *Store) DeleteFile(ctx context.Context, id string) (*File, error) {
	file, err := s.GetFile(ctx, id)
	if err != nil || file == nil {
		return nil, err
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	return file, nil
}

// PendingUploads returns records whose creation job has not completed: no url
// yet, staged bytes still referenced, and last enqueued before cutoff.
func (s *Store) PendingUploads(ctx context.Context, cutoff time.Time, maxReclaims int) ([]*File, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM files
        WHERE status = ? AND url IS NULL AND staging_path IS NOT NULL
            AND enqueued_at < ? AND reclaim_count < ?
        ORDER BY enqueued_at`,
		StatusProcessing,
		formatTime(cutoff),
		maxReclaims,
	)
	if err != nil {
		return nil, fmt.Errorf("pending uploads: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending upload: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// MarkReenqueued records that a creation job was published again.
func (s *Store) MarkReenqueued(ctx context.Context, id string) error {
	now := formatTime(s.now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE files SET reclaim_count = reclaim_count + 1, enqueued_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark reenqueued: %w", err)
	}
	return requireRow(res)
}

// KnownIDs reports which of ids still have records.
func (s *Store) KnownIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	known := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM files WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("known ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("file stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
