// Package errors defines the sentinel errors shared by the tokenizer, index,
// persistence and search layers, plus AppError, which attaches a message, the
// offending field and an HTTP status to a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnsupportedLanguage   = errors.New("unsupported language")
	ErrFormatVersionMismatch = errors.New("format version mismatch")
	ErrCorruptPersistedData  = errors.New("corrupt persisted data")
	ErrCorpusTextMismatch    = errors.New("corpus text mismatch")
	ErrInvalidInput          = errors.New("invalid input")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrIndexUnavailable      = errors.New("index unavailable")
	ErrInternal              = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	Field      string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Err.Error(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Corrupt reports a structural failure in persisted data, naming the field
// that could not be read.
func Corrupt(field string, format string, args ...any) *AppError {
	return &AppError{
		Err:        ErrCorruptPersistedData,
		Message:    fmt.Sprintf(format, args...),
		Field:      field,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Invalid reports a caller-supplied value that the engine rejects.
func Invalid(field string, format string, args ...any) *AppError {
	return &AppError{
		Err:        ErrInvalidInput,
		Message:    fmt.Sprintf(format, args...),
		Field:      field,
		StatusCode: http.StatusBadRequest,
	}
}

// FieldOf returns the field recorded on the first AppError in err's chain.
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// IsPermanent reports whether retrying the operation that produced err can
// never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrFormatVersionMismatch) ||
		errors.Is(err, ErrCorruptPersistedData) ||
		errors.Is(err, ErrUnsupportedLanguage) ||
		errors.Is(err, ErrCorpusTextMismatch) ||
		errors.Is(err, ErrInvalidInput)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, ErrCorpusTextMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrFormatVersionMismatch), errors.Is(err, ErrCorruptPersistedData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
