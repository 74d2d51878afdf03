// Package fault carries classified errors between the store, the engines
// and the HTTP facade. Handlers never inspect raw driver errors; they map
// a Kind to a status code and pass the message through.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	// Validation covers malformed or semantically invalid input.
	Validation Kind = "validation"
	// NotFound covers lookups that matched nothing.
	NotFound Kind = "not_found"
	// Conflict covers duplicates of unique rows.
	Conflict Kind = "conflict"
	// Integrity covers operations that would corrupt the forest, such as
	// deleting a family through the node endpoint or changing a code in
	// place.
	Integrity Kind = "integrity"
	// Forbidden covers operations the caller may never perform, like
	// removing the primary admin account.
	Forbidden Kind = "forbidden"
	// Unauthorized covers missing or failed authentication.
	Unauthorized Kind = "unauthorized"
	// Internal covers everything else.
	Internal Kind = "internal"
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return New(kind, "%s", message)
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors count as Internal; nil has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
