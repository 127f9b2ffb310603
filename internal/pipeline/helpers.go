package pipeline

import (
	"errors"
	"log/slog"

	"mediapipe/internal/logging"
	"mediapipe/internal/staging"
	"mediapipe/internal/store"
)

// ignoreDeleted treats a record deleted mid-stage as completed work.
func ignoreDeleted(err error) error {
	if errors.Is(err, store.ErrFileNotFound) {
		return nil
	}
	return err
}

func removeStaged(logger *slog.Logger, path string) {
	if err := staging.Remove(path); err != nil {
		logging.WarnWithContext(logger, "remove staged file failed", "staging_remove_failed",
			logging.Error(err),
			logging.String("staging_path", path),
			logging.String(logging.FieldErrorHint, "check staging directory permissions"),
			logging.String(logging.FieldImpact, "orphan cleanup removes it later"),
		)
	}
}
