package admission

import (
	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

// Category groups subjects that share a selection limit.
type Category string

const (
	CategoryLanguage    Category = "language"
	CategoryNonLanguage Category = "nonLanguage"
	CategoryAdditional  Category = "additional"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryLanguage, CategoryNonLanguage, CategoryAdditional}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLanguage, CategoryNonLanguage, CategoryAdditional:
		return true
	}
	return false
}

// LevelCatalog is the subject offering for one admission level.
type LevelCatalog struct {
	Level          models.AdmissionLevel `json:"level"`
	StreamRequired bool                  `json:"streamRequired"`
	Streams        []string              `json:"streams"`
	Subjects       map[Category][]string `json:"subjects"`
	Limits         map[Category]int      `json:"limits"`
	// Required lists the categories that need at least one pick.
	Required []Category `json:"required"`
}

var defaultLimits = map[Category]int{
	CategoryLanguage:    2,
	CategoryNonLanguage: 3,
	CategoryAdditional:  1,
}

var catalogs = []LevelCatalog{
	{
		Level:          models.LevelSecondary,
		StreamRequired: false,
		Subjects: map[Category][]string{
			CategoryLanguage: {"English", "Hindi", "Sanskrit", "Urdu", "Bengali"},
			CategoryNonLanguage: {
				"Mathematics", "Science & Technology", "Social Science", "Economics",
				"Business Studies", "Home Science", "Psychology", "Indian Culture & Heritage",
				"Accountancy", "Painting",
			},
			CategoryAdditional: {"Data Entry Operations", "Physical Education", "Computer Applications"},
		},
		Limits:   defaultLimits,
		Required: []Category{CategoryLanguage, CategoryNonLanguage},
	},
	{
		Level:          models.LevelSeniorSecondary,
		StreamRequired: true,
		Streams:        []string{"Science", "Commerce", "Arts"},
		Subjects: map[Category][]string{
			CategoryLanguage: {"English", "Hindi", "Sanskrit", "Urdu"},
			CategoryNonLanguage: {
				"Physics", "Chemistry", "Biology", "Mathematics", "History", "Geography",
				"Political Science", "Sociology", "Economics", "Business Studies", "Accountancy",
				"Psychology", "Computer Science", "Home Science",
			},
			CategoryAdditional: {"Physical Education", "Painting", "Computer Applications"},
		},
		Limits:   defaultLimits,
		Required: []Category{CategoryLanguage, CategoryNonLanguage},
	},
}

// Levels returns the catalogs for every admission level.
func Levels() []LevelCatalog {
	out := make([]LevelCatalog, len(catalogs))
	copy(out, catalogs)
	return out
}

// Lookup returns the catalog for level.
func Lookup(level models.AdmissionLevel) (LevelCatalog, bool) {
	for _, c := range catalogs {
		if c.Level == level {
			return c, true
		}
	}
	return LevelCatalog{}, false
}

// Offers reports whether subject belongs to category at this level.
func (c LevelCatalog) Offers(category Category, subject string) bool {
	for _, s := range c.Subjects[category] {
		if s == subject {
			return true
		}
	}
	return false
}

// Limit returns the maximum number of picks for category.
func (c LevelCatalog) Limit(category Category) int {
	return c.Limits[category]
}

// HasStream reports whether stream is one of the level streams.
func (c LevelCatalog) HasStream(stream string) bool {
	for _, s := range c.Streams {
		if s == stream {
			return true
		}
	}
	return false
}
