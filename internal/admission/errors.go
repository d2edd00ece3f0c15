package admission

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownField       = errors.New("unknown field")
	ErrNotEditable        = errors.New("form is not editable")
	ErrLimitReached       = errors.New("limit reached")
	ErrNotOffered         = errors.New("not offered for the selected admission level")
	ErrLevelRequired      = errors.New("choose the admission level first")
	ErrInvalidDeclaration = errors.New("declaration index out of range")
	ErrInvalidPhoto       = errors.New("photo is empty")
	ErrIncomplete         = errors.New("form is incomplete")
	ErrInvalidState       = errors.New("invalid state transition")
)

// ValidationError ties a rule failure to the field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IncompleteError lists every requirement still outstanding.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "form is incomplete, missing: " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }
