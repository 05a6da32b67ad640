package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidRange    = errors.New("invalid range")
	ErrIntegerParse    = errors.New("integer parse failure")
	ErrHorizonExceeded = errors.New("no occurrence within search horizon")
)

// FieldError reports the term of a field text that failed to parse.
type FieldError struct {
	Field string
	Term  string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("term %q: %v", e.Term, e.Err)
	}
	return fmt.Sprintf("%s: term %q: %v", e.Field, e.Term, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// integerError keeps both the kind and the strconv cause reachable through errors.Is.
type integerError struct {
	token string
	cause error
}

func (e *integerError) Error() string {
	return fmt.Sprintf("%v: %q: %v", ErrIntegerParse, e.token, e.cause)
}

func (e *integerError) Unwrap() []error {
	return []error{ErrIntegerParse, e.cause}
}
