package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of failure so callers can route on it.
type ErrorCode string

const (
	// ErrScanParse means a source file is not syntactically valid.
	ErrScanParse ErrorCode = "SCAN_PARSE"
	// ErrConfigParse means the persisted navigation configuration is malformed.
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	// ErrIO covers filesystem read/write failures.
	ErrIO ErrorCode = "IO"
	// ErrConfigInvalid means the tool's own options are unusable.
	ErrConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// Error is a coded error that always names the offending path when one exists.
type Error struct {
	Code    ErrorCode
	Path    string
	Line    int
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	loc := e.Path
	if loc != "" && e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	msg := e.Message
	if loc != "" {
		msg = loc + ": " + msg
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error carrying the same code, so sentinel-style checks work:
// errors.Is(err, &Error{Code: ErrIO}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates an error without a cause.
func New(code ErrorCode, path, message string) *Error {
	return &Error{Code: code, Path: path, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code ErrorCode, path, format string, args ...interface{}) *Error {
	return &Error{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and path to an underlying error. A nil err yields nil.
func Wrap(err error, code ErrorCode, path, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Path: path, Message: message, Wrapped: err}
}

// WithLine returns a copy of e pointing at a specific line.
func (e *Error) WithLine(line int) *Error {
	c := *e
	c.Line = line
	return &c
}

// IsCode reports whether any error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.Wrapped
			continue
		}
		return false
	}
	return false
}

// GetCode returns the code of the outermost coded error in the chain, or "".
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Multi collects independent failures that do not abort a run.
type Multi struct {
	Errs []error
}

func (m *Multi) Add(err error) {
	if err != nil {
		m.Errs = append(m.Errs, err)
	}
}

func (m *Multi) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Errs)
}

// ErrOrNil returns nil when nothing was collected.
func (m *Multi) ErrOrNil() error {
	if m.Len() == 0 {
		return nil
	}
	return m
}

func (m *Multi) Error() string {
	if len(m.Errs) == 1 {
		return m.Errs[0].Error()
	}
	return fmt.Sprintf("%d errors occurred; first: %v", len(m.Errs), m.Errs[0])
}

func (m *Multi) Unwrap() []error {
	return m.Errs
}
