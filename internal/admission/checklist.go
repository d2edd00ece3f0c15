package admission

import (
	"strings"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

// DocumentType names a supporting document the applicant should provide.
type DocumentType string

const (
	DocSignature        DocumentType = "Signature"
	DocAadhaarCard      DocumentType = "Aadhaar Card"
	DocBirthCertificate DocumentType = "Birth Certificate"
	DocJuniorPassCert   DocumentType = "Class VII or IX Pass Certificate"
	DocJuniorMarksheet  DocumentType = "Class VII or IX Marksheet"
	DocTenthMarksheet   DocumentType = "10th Marksheet"
	DocTenthPassCert    DocumentType = "10th Pass Certificate"
	DocTenthAdmitCard   DocumentType = "10th Admit Card"
)

// RequiredDocuments is the checklist in display order.
var RequiredDocuments = []DocumentType{
	DocSignature,
	DocAadhaarCard,
	DocBirthCertificate,
	DocJuniorPassCert,
	DocJuniorMarksheet,
	DocTenthMarksheet,
	DocTenthPassCert,
	DocTenthAdmitCard,
}

// ParseDocumentType matches s against the checklist, ignoring case and
// known spelling variants. Unknown values return false.
func ParseDocumentType(s string) (DocumentType, bool) {
	norm := normalizeTitle(s)
	if norm == "" {
		return "", false
	}
	for _, t := range RequiredDocuments {
		if normalizeTitle(string(t)) == norm {
			return t, true
		}
	}
	return "", false
}

func (t DocumentType) rank() int {
	for i, r := range RequiredDocuments {
		if r == t {
			return i
		}
	}
	return len(RequiredDocuments)
}

var titleAliases = strings.NewReplacer(
	"aadhar", "aadhaar",
	"admin card", "admit card",
	"mark sheet", "marksheet",
)

func normalizeTitle(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return titleAliases.Replace(s)
}

// IsTypeSatisfied reports whether any upload covers docType. A tagged upload
// counts only for its tag; untagged uploads match on their title.
func IsTypeSatisfied(docType DocumentType, docs []models.DocumentRef) bool {
	want := normalizeTitle(string(docType))
	for _, d := range docs {
		if d.Type != "" {
			if normalizeTitle(d.Type) == want {
				return true
			}
			continue
		}
		if strings.Contains(normalizeTitle(d.Title), want) {
			return true
		}
	}
	return false
}

// ChecklistItem is the status of one required document.
type ChecklistItem struct {
	Type      DocumentType `json:"type"`
	Satisfied bool         `json:"satisfied"`
}

// Checklist summarises required document coverage.
type Checklist struct {
	Items     []ChecklistItem `json:"items"`
	Satisfied int             `json:"satisfied"`
	Required  int             `json:"required"`
	Progress  float64         `json:"progress"`
	Complete  bool            `json:"complete"`
}

// BuildChecklist evaluates every required type against docs.
func BuildChecklist(docs []models.DocumentRef) Checklist {
	list := Checklist{
		Items:    make([]ChecklistItem, 0, len(RequiredDocuments)),
		Required: len(RequiredDocuments),
	}
	for _, t := range RequiredDocuments {
		ok := IsTypeSatisfied(t, docs)
		if ok {
			list.Satisfied++
		}
		list.Items = append(list.Items, ChecklistItem{Type: t, Satisfied: ok})
	}
	list.Progress = Progress(list.Satisfied, list.Required)
	list.Complete = list.Satisfied == list.Required
	return list
}

// Progress returns satisfied/required in the range [0,1].
func Progress(satisfied, required int) float64 {
	if required <= 0 {
		return 1
	}
	if satisfied > required {
		satisfied = required
	}
	return float64(satisfied) / float64(required)
}
