package store

import (
	"strings"
	"time"
)

// Kind is the coarse media class of an uploaded file.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindOther Kind = "other"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindAudio, KindOther:
		return true
	}
	return false
}

// KindFromMediaType derives the kind from the top-level media type; anything
// that is neither image/* nor audio/* is other.
func KindFromMediaType(mediaType string) Kind {
	major, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mediaType)), "/")
	switch major {
	case "image":
		return KindImage
	case "audio":
		return KindAudio
	default:
		return KindOther
	}
}

// Status represents the moderation lifecycle of a file record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSafe       Status = "safe"
	StatusUnsafe     Status = "unsafe"
)

// Terminal reports whether s is a settled verdict.
func (s Status) Terminal() bool {
	return s == StatusSafe || s == StatusUnsafe
}

// ParseStatus normalizes user input into a status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusProcessing, StatusSafe, StatusUnsafe:
		return status, true
	}
	return "", false
}

// File is the persisted record of one uploaded artifact.
//
// Field ownership:
//   - URL, BlurredURL, NeedsExternalCleanup, ExternalStorageID,
//     ExternalResourceKind: file-creation stage
//   - Status: moderation stage (creation settles safe for audio/other)
//   - Description: transcription stage
type File struct {
	ID                   string
	Kind                 Kind
	Status               Status
	MediaType            string
	OriginalName         string
	URL                  string
	BlurredURL           string
	Description          *string
	NeedsExternalCleanup bool
	ExternalStorageID    string
	ExternalResourceKind string
	StagingPath          string
	ReclaimCount         int
	EnqueuedAt           time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasDescription reports whether the transcription stage has completed.
func (f *File) HasDescription() bool {
	return f != nil && f.Description != nil
}

// PublicFile is the client-facing view of a file record without internal bookkeeping.
type PublicFile struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	MediaType    string    `json:"mediaType,omitempty"`
	OriginalName string    `json:"originalName,omitempty"`
	URL          string    `json:"url,omitempty"`
	BlurredURL   string    `json:"blurredUrl,omitempty"`
	Description  *string   `json:"description,omitempty"`
}

// Public strips internal fields.
func (f *File) Public() PublicFile {
	return PublicFile{
		ID:           f.ID,
		CreatedAt:    f.CreatedAt,
		Kind:         f.Kind,
		Status:       f.Status,
		MediaType:    f.MediaType,
		OriginalName: f.OriginalName,
		URL:          f.URL,
		BlurredURL:   f.BlurredURL,
		Description:  f.Description,
	}
}

// NewFile describes a record created by the ingestion gateway.
type NewFile struct {
	ID           string
	Kind         Kind
	MediaType    string
	OriginalName string
	StagingPath  string
}

// CreationResult is what the file-creation stage persists after a successful upload.
type CreationResult struct {
	URL                  string
	BlurredURL           string
	ExternalStorageID    string
	ExternalResourceKind string
	// MarkSafe settles status for kinds that bypass moderation.
	MarkSafe bool
	// KeepStaging leaves the staging path for a later stage.
	KeepStaging bool
}

// ResourceQuery selects a page of file records.
type ResourceQuery struct {
	Kind   Kind
	Status Status
	Page   int
	Limit  int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (q ResourceQuery) normalized() ResourceQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	return q
}

// ResourcePage is one page of a resource listing.
type ResourcePage struct {
	Items []*File
	Total int
	Page  int
	Limit int
}

// DeviceToken is a push registration for one user device.
type DeviceToken struct {
	UserID   string
	Token    string
	Platform string
}
