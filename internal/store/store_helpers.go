package store

import (
	"database/sql"
	"errors"
	"time"
)

const fileColumns = "id, kind, status, media_type, original_name, url, blurred_url, description, needs_external_cleanup, external_storage_id, external_resource_kind, staging_path, reclaim_count, enqueued_at, created_at, updated_at"

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanFile(scanner interface{ Scan(dest ...any) error }) (*File, error) {
	var (
		id           string
		kind         string
		status       string
		mediaType    sql.NullString
		originalName sql.NullString
		url          sql.NullString
		blurredURL   sql.NullString
		description  sql.NullString
		needsCleanup sql.NullInt64
		externalID   sql.NullString
		externalKind sql.NullString
		stagingPath  sql.NullString
		reclaimCount sql.NullInt64
		enqueuedRaw  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&status,
		&mediaType,
		&originalName,
		&url,
		&blurredURL,
		&description,
		&needsCleanup,
		&externalID,
		&externalKind,
		&stagingPath,
		&reclaimCount,
		&enqueuedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	file := &File{
		ID:                   id,
		Kind:                 Kind(kind),
		Status:               Status(status),
		MediaType:            mediaType.String,
		OriginalName:         originalName.String,
		URL:                  url.String,
		BlurredURL:           blurredURL.String,
		NeedsExternalCleanup: needsCleanup.Valid && needsCleanup.Int64 != 0,
		ExternalStorageID:    externalID.String,
		ExternalResourceKind: externalKind.String,
		StagingPath:          stagingPath.String,
		ReclaimCount:         int(reclaimCount.Int64),
	}
	if description.Valid {
		value := description.String
		file.Description = &value
	}
	if enqueued, err := parseTimeString(enqueuedRaw.String); err == nil {
		file.EnqueuedAt = enqueued
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		file.UpdatedAt = updated
	}
	return file, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
