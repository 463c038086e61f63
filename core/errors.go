package core

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced by the parsing layer. Callers match them
// with errors.Is after any amount of fmt.Errorf("%w") wrapping.
var (
	// ErrMalformedObject indicates the tokenizer or parser could not make
	// sense of the bytes at a claimed offset.
	ErrMalformedObject = errors.New("malformed object")

	// ErrUnresolvedReference indicates an indirect reference did not
	// resolve to the expected type, such as a stream /Length.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrUnsupportedFilter indicates a stream names a decode filter that
	// is not implemented.
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// ParseError wraps a parse failure with the byte position it occurred at.
type ParseError struct {
	Pos int64
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %v", e.Pos, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// malformed builds an ErrMalformedObject with a formatted detail message.
func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedObject, fmt.Sprintf(format, args...))
}
