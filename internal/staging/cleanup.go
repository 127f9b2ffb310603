package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"mediapipe/internal/logging"
)

// FileInfo describes one entry in the staging directory.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	// Temp marks an upload that never finished writing.
	Temp bool
}

type CleanupError struct {
	Path  string
	Error error
}

type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// KnownFunc reports which of ids still have a file record.
type KnownFunc func(ctx context.Context, ids []string) (map[string]struct{}, error)

// scan lists regular files in dir. A missing or blank dir is empty.
func scan(dir string) ([]FileInfo, []CleanupError) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, []CleanupError{{Path: dir, Error: err}}
	}
	var files []FileInfo
	var errs []CleanupError
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, CleanupError{Path: path, Error: err})
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Temp:    strings.HasPrefix(entry.Name(), tempPrefix),
		})
	}
	return files, errs
}

// ListFiles returns the completed staged files in dir.
func ListFiles(dir string) ([]FileInfo, error) {
	files, errs := scan(dir)
	if len(errs) > 0 && files == nil {
		return nil, errs[0].Error
	}
	return slices.DeleteFunc(files, func(f FileInfo) bool { return f.Temp }), nil
}

// CleanOrphaned deletes files older than maxAge that no record points at,
// along with stale temp files. When the record lookup fails only temp files
// are removed.
func CleanOrphaned(ctx context.Context, dir string, maxAge time.Duration, known KnownFunc, logger *slog.Logger) CleanResult {
	files, errs := scan(dir)
	result := CleanResult{Errors: errs}

	cutoff := time.Now().Add(-maxAge)
	var doomed []string
	stale := map[string]string{}
	for _, f := range files {
		switch {
		case !f.ModTime.Before(cutoff):
		case f.Temp:
			doomed = append(doomed, f.Path)
		default:
			stale[IDFromName(f.Name)] = f.Path
		}
	}

	if len(stale) > 0 {
		live, err := known(ctx, slices.Collect(maps.Keys(stale)))
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		} else {
			for id, path := range stale {
				if _, ok := live[id]; !ok {
					doomed = append(doomed, path)
				}
			}
		}
	}

	logger = logging.NewComponentLogger(logger, "staging")
	for _, path := range doomed {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logging.WarnWithContext(logger, "orphaned staging file not removed", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed orphaned staging file",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
