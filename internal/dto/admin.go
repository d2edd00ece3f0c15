package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

// ApplicationRow is one line of the admin applications table.
type ApplicationRow struct {
	FormNumber      string                   `json:"formNumber"`
	ID              string                   `json:"id"`
	Status          models.ApplicationStatus `json:"status"`
	CreatedAt       time.Time                `json:"createdAt"`
	PhotoPreviewURL string                   `json:"photoPreviewUrl"`
	models.ApplicationFields
}

// ApplicationListResponse separates "no records at all" from "nothing matched".
type ApplicationListResponse struct {
	Items   []ApplicationRow `json:"items"`
	Total   int              `json:"total"`
	Matched int              `json:"matched"`
}

// ApplicationDetail is the admin detail view of one application.
type ApplicationDetail struct {
	Application  models.Application          `json:"application"`
	PhotoURL     string                      `json:"photoUrl"`
	SignatureURL string                      `json:"signatureUrl,omitempty"`
	Documents    []admission.LabeledDocument `json:"documents"`
	Checklist    admission.Checklist         `json:"checklist"`
	History      []AuditEntry                `json:"history"`
}

// EditDraft is the editable copy of an application's persisted fields.
type EditDraft struct {
	ID     string                   `json:"id"`
	Fields models.ApplicationFields `json:"fields"`
}

// AuditEntry is one change recorded against an application.
type AuditEntry struct {
	Action    string          `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
