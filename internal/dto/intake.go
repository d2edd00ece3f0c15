package dto

import (
	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

// SessionView is the draft state returned by every intake endpoint.
type SessionView struct {
	SessionID           string                   `json:"sessionId"`
	State               admission.State          `json:"state"`
	Fields              models.ApplicationFields `json:"fields"`
	Declarations        []bool                   `json:"declarations"`
	Photo               *admission.Photo         `json:"photo,omitempty"`
	ApplicationID       string                   `json:"applicationId,omitempty"`
	AllRequiredFilled   bool                     `json:"allRequiredFilled"`
	CanSubmit           bool                     `json:"canSubmit"`
	MissingRequirements []string                 `json:"missingRequirements"`
	Checklist           *admission.Checklist     `json:"checklist,omitempty"`
}

// UpdateFieldsRequest sets one or more draft fields by name.
type UpdateFieldsRequest struct {
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

// UpdateFieldsResponse echoes the draft and any selections dropped by a level change.
type UpdateFieldsResponse struct {
	Session    SessionView          `json:"session"`
	Adjustment admission.Adjustment `json:"adjustment"`
}

// ToggleSubjectRequest adds or removes one subject.
type ToggleSubjectRequest struct {
	Category admission.Category `json:"category" validate:"required"`
	Subject  string             `json:"subject" validate:"required"`
}

// ToggleSubjectResponse reports whether the subject is selected afterwards.
type ToggleSubjectResponse struct {
	Selected bool        `json:"selected"`
	Session  SessionView `json:"session"`
}

// SetDeclarationsRequest carries every declaration checkbox.
type SetDeclarationsRequest struct {
	Declarations []bool `json:"declarations" validate:"required,len=6"`
}

// UploadDocumentRequest holds the form fields sent with a document file.
type UploadDocumentRequest struct {
	Title string `form:"title" json:"title"`
	Type  string `form:"type" json:"type"`
}

// DocumentUploadResponse returns the stored reference and checklist progress.
type DocumentUploadResponse struct {
	Document  models.DocumentRef  `json:"document"`
	Checklist admission.Checklist `json:"checklist"`
}

// SubmitResponse is returned once stage one has been persisted.
type SubmitResponse struct {
	ApplicationID string      `json:"applicationId"`
	Session       SessionView `json:"session"`
}
