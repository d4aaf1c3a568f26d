package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a project, unit, task or other record is absent.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a compare-and-swap write lost to a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnavailableError marks a failure of the storage layer itself, as opposed to a
// failure caused by the request.
type UnavailableError struct {
	Op  string
	Err error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("persistence unavailable (%s): %v", e.Op, e.Err)
}

func (e UnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err unless it already carries a classified meaning.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve ValidationError
	var ue UnavailableError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.As(err, &ve) || errors.As(err, &ue) {
		return err
	}
	return UnavailableError{Op: op, Err: err}
}
