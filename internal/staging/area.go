package staging

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"mediapipe/internal/services"
)

const tempPrefix = ".upload-"

// ErrTooLarge reports an upload beyond the configured byte limit.
var ErrTooLarge = services.Wrap(services.ErrValidation, "staging", "write", "upload exceeds size limit", nil)

// Area is the local directory holding uploaded bytes between ingestion and
// the stage that last needs them.
type Area struct {
	dir string
}

// New returns an Area rooted at dir.
func New(dir string) *Area {
	return &Area{dir: dir}
}

// Dir returns the staging root.
func (a *Area) Dir() string {
	return a.dir
}

// PathFor returns the stable staging path for a file id and extension.
func (a *Area) PathFor(id, ext string) string {
	return filepath.Join(a.dir, id+ext)
}

// Write streams r to {dir}/{id}{ext}. The bytes land in a temp file that is
// renamed into place, so the final path either holds the complete upload or
// does not exist. A positive limit caps the number of bytes accepted.
func (a *Area) Write(id, ext string, r io.Reader, limit int64) (string, int64, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", 0, services.Wrap(services.ErrConfiguration, "staging", "write", "create staging dir", err)
	}
	tmp, err := os.CreateTemp(a.dir, tempPrefix+"*")
	if err != nil {
		return "", 0, services.Wrap(services.ErrTransient, "staging", "write", "create temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return "", 0, services.Wrap(services.ErrTransient, "staging", "write", "copy upload", err)
	}
	if limit > 0 && written > limit {
		cleanup()
		return "", 0, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, services.Wrap(services.ErrTransient, "staging", "write", "sync upload", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, services.Wrap(services.ErrTransient, "staging", "write", "close upload", err)
	}

	final := a.PathFor(id, ext)
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, services.Wrap(services.ErrTransient, "staging", "write", "rename upload", err)
	}
	return final, written, nil
}

// Exists reports whether a staged file is present.
func Exists(path string) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	info, err := os.Stat(path)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, services.Wrap(services.ErrTransient, "staging", "stat", path, err)
}

// Remove deletes a staged file. A missing file is not an error.
func Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Extension picks the staged file suffix from the original name, falling
// back to the media type. It returns "" when neither yields one.
func Extension(originalName, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(strings.TrimSpace(originalName))))
	if validExtension(ext) {
		return ext
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

func validExtension(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// IDFromName returns the file id encoded in a staged file name.
func IDFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
