package mixer

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by construction, append and load.
var (
	ErrConfig   = errors.New("INVALID_CONFIG")
	ErrCapacity = errors.New("CAPACITY")
	ErrParse    = errors.New("PARSE_ERROR")
)

// ParseError reports a malformed text definition or binary record.
type ParseError struct {
	Line int // 1-based line in the text buffer, 0 for binary records
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
	}
	return "parse error: " + e.Msg
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// LineError attaches a source line to a configuration or capacity error
// raised while loading a text buffer.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func capacityErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCapacity, fmt.Sprintf(format, args...))
}
