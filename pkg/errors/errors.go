// Package errors defines the sentinel errors and typed failures shared by the
// indexer and the search service, plus their mapping onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBuild        = errors.New("index build failed")
	ErrDeserialize  = errors.New("index blob could not be decoded")
	ErrQueryConfig  = errors.New("invalid search options")
	ErrNotReady     = errors.New("no index loaded")
	ErrInvalidInput = errors.New("invalid input")
	ErrBlobNotFound = errors.New("index blob not found")
	ErrTimeout      = errors.New("operation timed out")
)

// BuildError reports a document that cannot be indexed. Doc is the position of
// the offending document in the input batch.
type BuildError struct {
	Doc    int
	DocID  string
	Field  string
	Reason string
}

func (e *BuildError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("document %d (%q) field %q: %s", e.Doc, e.DocID, e.Field, e.Reason)
	}
	return fmt.Sprintf("document %d (%q): %s", e.Doc, e.DocID, e.Reason)
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// DeserializeKind distinguishes structurally broken blobs from blobs written
// by a format version this build does not understand.
type DeserializeKind string

const (
	KindMalformed          DeserializeKind = "malformed"
	KindUnsupportedVersion DeserializeKind = "unsupported_version"
)

type DeserializeError struct {
	Kind   DeserializeKind
	Reason string
	Err    error
}

func (e *DeserializeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s index blob: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s index blob: %s", e.Kind, e.Reason)
}

func (e *DeserializeError) Unwrap() error {
	return e.Err
}

func (e *DeserializeError) Is(target error) bool {
	return target == ErrDeserialize
}

func Malformed(reason string, err error) *DeserializeError {
	return &DeserializeError{Kind: KindMalformed, Reason: reason, Err: err}
}

type QueryConfigError struct {
	Option string
	Reason string
}

func (e *QueryConfigError) Error() string {
	return fmt.Sprintf("search option %s: %s", e.Option, e.Reason)
}

func (e *QueryConfigError) Is(target error) bool {
	return target == ErrQueryConfig
}

type NotReadyError struct{}

func (e *NotReadyError) Error() string {
	return "search engine has no index loaded"
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

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

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQueryConfig), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDeserialize), errors.Is(err, ErrBuild):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
