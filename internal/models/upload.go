package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DocumentRef points at one uploaded supporting document.
type DocumentRef struct {
	Type       string    `json:"type,omitempty"`
	Title      string    `json:"title"`
	FileID     string    `json:"fileId"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// DocumentList is the ordered JSONB documents column.
type DocumentList []DocumentRef

// Value implements driver.Valuer. The JSON is sent as text so it casts
// cleanly to jsonb.
func (d DocumentList) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]DocumentRef(d))
	if err != nil {
		return nil, fmt.Errorf("marshal documents: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (d *DocumentList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = DocumentList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan documents: unsupported type %T", src)
	}
	var docs []DocumentRef
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("scan documents: %w", err)
	}
	if docs == nil {
		docs = []DocumentRef{}
	}
	*d = docs
	return nil
}

// UploadRecord collects the files attached to one application.
type UploadRecord struct {
	ID              string       `db:"id" json:"id"`
	ApplicantID     string       `db:"applicant_id" json:"applicantId"`
	PhotoFileID     string       `db:"photo_file_id" json:"photoFileId"`
	PhotoURL        string       `db:"photo_url" json:"photoUrl"`
	SignatureFileID string       `db:"signature_file_id" json:"signatureFileId,omitempty"`
	SignatureURL    string       `db:"signature_url" json:"signatureUrl,omitempty"`
	Documents       DocumentList `db:"documents" json:"documents"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}
