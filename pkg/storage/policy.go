package storage

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// UploadPolicy validates supporting documents by sniffed content type and size.
type UploadPolicy struct {
	AllowedMIMEs     []string
	MaxImageBytes    int64
	MaxDocumentBytes int64
}

// Check sniffs data and returns its canonical content type when accepted.
func (p UploadPolicy) Check(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}
	mt := mimetype.Detect(data)
	allowed := p.AllowedMIMEs
	if len(allowed) == 0 {
		allowed = []string{"image/jpeg", "image/png", "application/pdf"}
	}
	accepted := false
	for _, candidate := range allowed {
		if mt.Is(strings.ToLower(candidate)) {
			accepted = true
			break
		}
	}
	if !accepted {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	limit := p.MaxDocumentBytes
	if strings.HasPrefix(mt.String(), "image/") {
		limit = p.MaxImageBytes
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), limit)
	}
	return mt.String(), nil
}
