package query

import "errors"

var (
	// ErrInvalidQuerySyntax is returned when the query text is not well-formed JSON.
	// It is the only hard failure in lenient mode.
	ErrInvalidQuerySyntax = errors.New("invalid query syntax")

	// ErrMalformedCondition is reported in strict mode for a condition missing
	// its field, operator or value.
	ErrMalformedCondition = errors.New("malformed condition")

	// ErrUnknownOperator is reported in strict mode for an unsupported operator symbol.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrInvalidOption is reported in strict mode for an unusable sort or
	// pagination option.
	ErrInvalidOption = errors.New("invalid query option")

	// ErrMissingParam is reported in strict mode when a template placeholder
	// has no matching parameter.
	ErrMissingParam = errors.New("missing query parameter")
)

// IsInvalid reports whether err was caused by bad client input rather than a
// store or server failure.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidQuerySyntax) ||
		errors.Is(err, ErrMalformedCondition) ||
		errors.Is(err, ErrUnknownOperator) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrMissingParam)
}
