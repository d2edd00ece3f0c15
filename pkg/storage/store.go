package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// URLMode selects how a stored file is rendered by the URL a store returns.
type URLMode string

const (
	// ModePreview is used for thumbnails in admin listings.
	ModePreview URLMode = "preview"
	// ModeView is the durable link persisted next to upload references.
	ModeView URLMode = "view"
)

// Valid reports whether m is a known URL mode.
func (m URLMode) Valid() bool {
	return m == ModePreview || m == ModeView
}

var (
	// ErrInvalidFileID is returned for identifiers that escape the store namespace.
	ErrInvalidFileID = errors.New("invalid file id")
	// ErrUnsupportedType is returned when sniffed content is not accepted.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge is returned when content exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
)

// Object is a blob about to be written to a store.
type Object struct {
	Folder      string
	ContentType string
	Data        []byte
}

// ObjectStore persists applicant files and resolves links to them.
type ObjectStore interface {
	Put(ctx context.Context, obj Object) (string, error)
	URL(ctx context.Context, fileID string, mode URLMode) (string, error)
	Delete(ctx context.Context, fileID string) error
}

// NewFileID builds a collision-free identifier under folder with an extension
// derived from the content type.
func NewFileID(folder, contentType string) string {
	ext := ""
	if mt := mimetype.Lookup(contentType); mt != nil {
		ext = mt.Extension()
	}
	folder = strings.Trim(path.Clean("/"+folder), "/")
	name := uuid.NewString() + ext
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func cleanFileID(fileID string) (string, error) {
	if fileID == "" || strings.Contains(fileID, "..") || strings.HasPrefix(fileID, "/") || strings.Contains(fileID, "\\") {
		return "", ErrInvalidFileID
	}
	cleaned := path.Clean(fileID)
	if cleaned == "." || cleaned != fileID {
		return "", ErrInvalidFileID
	}
	return cleaned, nil
}
