package dto

// SummaryLine is one labelled value in a confirmation mail summary.
type SummaryLine struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ConfirmationRequest is the payload of POST /notifications/confirmation and
// of queued submission mails.
type ConfirmationRequest struct {
	ApplicantEmail string        `json:"studentEmail" validate:"required,email"`
	ApplicantName  string        `json:"studentName" validate:"required"`
	Summary        string        `json:"formSummary"`
	Details        []SummaryLine `json:"-"`
}

// ConfirmationResponse reports which mails were sent.
type ConfirmationResponse struct {
	OK         bool `json:"ok"`
	AdminAlert bool `json:"adminAlert"`
}
