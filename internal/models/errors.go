package models

import (
	"errors"
	"fmt"
)

// Error classes shared by every layer. Wrap them with fmt.Errorf("...: %w", Err...) so callers
// can branch with errors.Is.
var (
	// ErrConfiguration marks invalid collection, upload, or query parameters.
	ErrConfiguration = errors.New("configuration error")
	// ErrConflict marks an existing collection whose configuration differs from the request.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an unknown collection or record.
	ErrNotFound = errors.New("not found")
	// ErrShape marks a vector whose dimensionality does not match the collection.
	ErrShape = errors.New("shape error")
	// ErrTransient marks a network, timeout, or storage hiccup that may succeed on retry.
	ErrTransient = errors.New("transient store error")
	// ErrEmptyQuery marks a search without query vectors.
	ErrEmptyQuery = errors.New("empty query")
)

// ShapeError reports a dimensionality mismatch. It matches ErrShape with errors.Is.
type ShapeError struct {
	Expected int
	Actual   int
	// ID is the offending record, empty for query vectors.
	ID string
}

func (e *ShapeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("shape error: record %q has dimension %d, expected %d", e.ID, e.Actual, e.Expected)
	}
	return fmt.Sprintf("shape error: dimension %d, expected %d", e.Actual, e.Expected)
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// ErrorKind is the wire name of an error class.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
	KindShape         ErrorKind = "shape"
	KindTransient     ErrorKind = "transient"
	KindEmptyQuery    ErrorKind = "empty_query"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err into one of the wire kinds.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrShape):
		return KindShape
	case errors.Is(err, ErrEmptyQuery):
		return KindEmptyQuery
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// ErrorForKind returns the sentinel for a wire kind, or nil for unknown/internal kinds.
func ErrorForKind(kind ErrorKind) error {
	switch kind {
	case KindConfiguration:
		return ErrConfiguration
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindShape:
		return ErrShape
	case KindEmptyQuery:
		return ErrEmptyQuery
	case KindTransient:
		return ErrTransient
	default:
		return nil
	}
}

// IsPermanent reports whether err is a caller mistake that retrying cannot fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrShape) ||
		errors.Is(err, ErrEmptyQuery)
}
