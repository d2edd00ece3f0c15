package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

func TestClassifyLocation(t *testing.T) {
	cases := map[string]DocumentType{
		"https://cdn.example.com/files/signature_asha.png":           DocSignature,
		"https://cdn.example.com/files/Aadhar%20Card.pdf":            DocAadhaarCard,
		"documents/birth-certificate.pdf":                            DocBirthCertificate,
		"https://cdn.example.com/files/10th_marksheet.pdf?mode=view": DocTenthMarksheet,
		"https://cdn.example.com/files/tenth-admit-card.pdf":         DocTenthAdmitCard,
		"https://cdn.example.com/files/10th_pass_certificate.pdf":    DocTenthPassCert,
		"https://cdn.example.com/files/class9_marksheet.pdf":         DocJuniorMarksheet,
		"https://cdn.example.com/files/vii-pass-cert.pdf":            DocJuniorPassCert,
		"https://cdn.example.com/files/class_ix_marksheet.pdf":       DocJuniorMarksheet,
		"uploads/IX_pass_certificate.pdf":                            DocJuniorPassCert,
		"https://cdn.example.com/files/class_x_marksheet.pdf":        DocTenthMarksheet,
		"https://cdn.example.com/files/X-admit-card.pdf":             DocTenthAdmitCard,
	}
	for location, want := range cases {
		got, ok := ClassifyLocation(location)
		assert.True(t, ok, location)
		assert.Equal(t, want, got, location)
	}

	_, ok := ClassifyLocation("https://cdn.example.com/files/3f2a9c/view")
	assert.False(t, ok)
}

func TestLabelDocumentsOrdering(t *testing.T) {
	docs := []models.DocumentRef{
		{URL: "https://cdn.example.com/files/unknown-one/view"},
		{Type: string(DocTenthMarksheet), Title: "marks", URL: "u2"},
		{URL: "https://cdn.example.com/files/aadhaar.pdf"},
		{URL: "https://cdn.example.com/files/unknown-two/view"},
		{Type: string(DocSignature), URL: "u5"},
	}
	labeled := LabelDocuments(docs)
	labels := make([]string, 0, len(labeled))
	for _, d := range labeled {
		labels = append(labels, d.Label)
	}
	assert.Equal(t, []string{
		"Signature",
		"Aadhaar Card",
		"10th Marksheet",
		"Document 1",
		"Document 4",
	}, labels)
	assert.False(t, labeled[3].Classified)
}
