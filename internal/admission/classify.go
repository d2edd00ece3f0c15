package admission

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

type keywordRule struct {
	docType DocumentType
	all     [][]string
}

var (
	tenthKeywords  = []string{"10th", "tenth", "class10", "=x"}
	juniorKeywords = []string{"7th", "9th", "class7", "class9", "=vii", "=ix"}
)

// classifierRules are checked in order; each inner slice needs one match.
// A keyword starting with "=" must equal a whole "_" separated token.
var classifierRules = []keywordRule{
	{DocSignature, [][]string{{"signature", "sign"}}},
	{DocAadhaarCard, [][]string{{"aadhaar", "aadhar", "adhar"}}},
	{DocBirthCertificate, [][]string{{"birth", "dob"}}},
	{DocTenthAdmitCard, [][]string{tenthKeywords, {"admit", "admin"}}},
	{DocTenthMarksheet, [][]string{tenthKeywords, {"mark"}}},
	{DocTenthPassCert, [][]string{tenthKeywords, {"pass", "cert"}}},
	{DocJuniorMarksheet, [][]string{juniorKeywords, {"mark"}}},
	{DocJuniorPassCert, [][]string{juniorKeywords, {"pass", "cert"}}},
}

// ClassifyLocation guesses a document type from the file name embedded in a
// legacy URL or storage key.
func ClassifyLocation(location string) (DocumentType, bool) {
	name := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		name = u.Path
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.ToLower(path.Base(name))
	name = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name)
	if name == "" || name == "_" {
		return "", false
	}
	for _, rule := range classifierRules {
		if matchesAll(name, rule.all) {
			return rule.docType, true
		}
	}
	return "", false
}

func matchesAll(name string, groups [][]string) bool {
	tokens := strings.Split(name, "_")
	for _, group := range groups {
		found := false
		for _, kw := range group {
			if hasKeyword(name, tokens, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasKeyword(name string, tokens []string, kw string) bool {
	word, whole := strings.CutPrefix(kw, "=")
	if !whole {
		return strings.Contains(name, kw)
	}
	for _, tok := range tokens {
		if tok == word {
			return true
		}
	}
	return false
}

// LabeledDocument is a document prepared for the admin detail view.
type LabeledDocument struct {
	Label      string       `json:"label"`
	Type       DocumentType `json:"type,omitempty"`
	Title      string       `json:"title,omitempty"`
	FileID     string       `json:"fileId,omitempty"`
	URL        string       `json:"url"`
	UploadedAt time.Time    `json:"uploadedAt,omitempty"`
	Classified bool         `json:"classified"`
}

// LabelDocuments names each document by its tag, falling back to the file
// name classifier and then to "Document N". The result follows checklist
// order with unclassified documents last in upload order.
func LabelDocuments(docs []models.DocumentRef) []LabeledDocument {
	out := make([]LabeledDocument, 0, len(docs))
	for i, d := range docs {
		item := LabeledDocument{
			Title:      d.Title,
			FileID:     d.FileID,
			URL:        d.URL,
			UploadedAt: d.UploadedAt,
		}
		if t, ok := ParseDocumentType(d.Type); ok {
			item.Type, item.Classified = t, true
		} else if t, ok := classifyRef(d); ok {
			item.Type, item.Classified = t, true
		}
		if item.Classified {
			item.Label = string(item.Type)
		} else {
			item.Label = fmt.Sprintf("Document %d", i+1)
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return labelRank(out[i]) < labelRank(out[j])
	})
	return out
}

func classifyRef(d models.DocumentRef) (DocumentType, bool) {
	if d.Type != "" {
		return "", false
	}
	if d.URL != "" {
		if t, ok := ClassifyLocation(d.URL); ok {
			return t, true
		}
	}
	if d.FileID != "" {
		return ClassifyLocation(d.FileID)
	}
	return "", false
}

func labelRank(d LabeledDocument) int {
	if !d.Classified {
		return len(RequiredDocuments)
	}
	return d.Type.rank()
}
