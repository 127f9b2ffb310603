package store

import "mediapipe/internal/services"

// ErrFileNotFound is returned by stage updates whose record has been deleted.
var ErrFileNotFound = services.Wrap(services.ErrNotFound, "store", "", "file record not found", nil)
