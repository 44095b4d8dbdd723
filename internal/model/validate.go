package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// namePattern restricts collection and query names to URL- and topic-safe identifiers.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

const maxNameLength = 128

func validateName(ve *ValidationError, field, name string) {
	switch {
	case name == "":
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: "is required"})
	case len(name) > maxNameLength:
		ve.Errors = append(ve.Errors, FieldError{
			Field:   field,
			Message: fmt.Sprintf("must be %d characters or fewer", maxNameLength),
		})
	case !namePattern.MatchString(name):
		ve.Errors = append(ve.Errors, FieldError{
			Field:   field,
			Message: fmt.Sprintf("invalid value %q (letters, digits, '-' and '_' only)", name),
		})
	}
}

// ValidateCollectionName checks a collection name supplied in a request path.
func ValidateCollectionName(name string) error {
	var ve ValidationError
	validateName(&ve, "collection", name)
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateNamedQuery checks a NamedQuery for constraint violations before it
// is registered. It returns a *ValidationError if any rules fail.
func ValidateNamedQuery(q *NamedQuery) error {
	var ve ValidationError

	validateName(&ve, "name", q.Name)
	validateName(&ve, "collectionName", q.CollectionName)

	if len(q.Pipeline) == 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "pipeline", Message: "must contain at least one stage"})
	}
	for i, stage := range q.Pipeline {
		if len(stage) != 1 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("pipeline[%d]", i),
				Message: fmt.Sprintf("a stage must have exactly one operator, got %d", len(stage)),
			})
			continue
		}
		for op := range stage {
			if !strings.HasPrefix(op, "$") {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   fmt.Sprintf("pipeline[%d]", i),
					Message: fmt.Sprintf("stage operator %q must start with '$'", op),
				})
			}
		}
	}

	if len([]rune(q.Description)) > 2000 {
		ve.Errors = append(ve.Errors, FieldError{Field: "description", Message: "must be 2000 characters or fewer"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
