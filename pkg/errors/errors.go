// Package errors defines the sentinel errors shared by the engine, its
// sources and its HTTP surface, plus typed errors that carry context and
// still match their sentinel through errors.Is.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIndexNotBuilt     = errors.New("index not built")
	ErrMalformedDocument = errors.New("malformed document")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
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

// IndexNotBuiltError is returned when a query reaches an engine that has
// never completed a build.
type IndexNotBuiltError struct {
	Operation string
}

func (e *IndexNotBuiltError) Error() string {
	if e.Operation == "" {
		return ErrIndexNotBuilt.Error()
	}
	return fmt.Sprintf("%s: %s", e.Operation, ErrIndexNotBuilt.Error())
}

func (e *IndexNotBuiltError) Is(target error) bool {
	return target == ErrIndexNotBuilt
}

// MalformedDocumentError describes a document rejected at build time.
// Position is the document's offset in the input batch.
type MalformedDocumentError struct {
	Position int
	Field    string
	Reason   string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("document at position %d: field %q: %s", e.Position, e.Field, e.Reason)
}

func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}

// NewMalformedDocumentError creates a MalformedDocumentError.
func NewMalformedDocumentError(position int, field, reason string) *MalformedDocumentError {
	return &MalformedDocumentError{Position: position, Field: field, Reason: reason}
}

// InvalidQueryError reports a query clause that names an unsupported field
// or carries an unusable value.
type InvalidQueryError struct {
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid query: %s", e.Reason)
	}
	return fmt.Sprintf("invalid query: field %q: %s", e.Field, e.Reason)
}

func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// NewInvalidQueryError creates an InvalidQueryError.
func NewInvalidQueryError(field, reason string) *InvalidQueryError {
	return &InvalidQueryError{Field: field, Reason: reason}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedDocument):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotBuilt), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
