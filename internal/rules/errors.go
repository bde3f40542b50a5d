package rules

import "fmt"

// ErrorKind classifies a rule validation failure
type ErrorKind string

const (
	ErrUnsupportedField    ErrorKind = "unsupported_field"
	ErrUnsupportedOperator ErrorKind = "unsupported_operator"
	ErrInvalidValue        ErrorKind = "invalid_value"
	ErrInvalidDate         ErrorKind = "invalid_date"
)

// ValidationError reports a bad rule along with its index in the rule list.
// It is surfaced to the caller before any audience resolution happens.
type ValidationError struct {
	Index   int
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %d: %s: %s", e.Index, e.Kind, e.Message)
}

func unsupportedField(index int, field string) *ValidationError {
	return &ValidationError{
		Index:   index,
		Kind:    ErrUnsupportedField,
		Message: fmt.Sprintf("unknown field %q", field),
	}
}

func unsupportedOperator(index int, op, field string) *ValidationError {
	return &ValidationError{
		Index:   index,
		Kind:    ErrUnsupportedOperator,
		Message: fmt.Sprintf("operator %q is not valid for field %q", op, field),
	}
}

func invalidValue(index int, format string, args ...any) *ValidationError {
	return &ValidationError{
		Index:   index,
		Kind:    ErrInvalidValue,
		Message: fmt.Sprintf(format, args...),
	}
}

func invalidDate(index int, value any) *ValidationError {
	return &ValidationError{
		Index:   index,
		Kind:    ErrInvalidDate,
		Message: fmt.Sprintf("cannot parse %v as a date", value),
	}
}
