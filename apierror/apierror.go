// Package apierror defines the error taxonomy shared by every component of
// the client: transport failures, validation failures, auth failures and the
// session-expired condition that forces a logout.
package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure from the remote API or the transport beneath it.
type Kind string

const (
	// NetworkError means no usable response was received (DNS, timeout,
	// connection reset). The request may or may not have reached the server.
	NetworkError Kind = "network_error"

	// ValidationError is a 4xx response carrying field-level detail, e.g. a
	// rejected registration form. Field errors are preserved verbatim.
	ValidationError Kind = "validation_error"

	// AuthRequired means the current access token was rejected. It is
	// handled inside the gateway (refresh and retry) and never reaches
	// callers unless the refresh itself fails.
	AuthRequired Kind = "auth_required"

	// SessionExpired means the refresh token was rejected too. The session
	// is gone; the caller must re-authenticate.
	SessionExpired Kind = "session_expired"

	// ConflictOrNotFound is an entity-level failure (404/409) during a
	// mutation, e.g. liking an already-deleted post. Triggers rollback.
	ConflictOrNotFound Kind = "conflict_or_not_found"

	// InvalidCredentials is a rejected username/password pair at login.
	InvalidCredentials Kind = "invalid_credentials"

	// Unexpected covers everything else the server can throw at us.
	Unexpected Kind = "unexpected"
)

// Error is the concrete error type returned by the client. StatusCode is
// zero when no response was received. Fields holds server-side validation
// detail keyed by field name, untouched.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Fields     map[string][]string
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithStatus attaches the HTTP status code that produced the error.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithFields attaches server-provided field errors.
func (e *Error) WithFields(fields map[string][]string) *Error {
	e.Fields = fields
	return e
}

// KindOf extracts the Kind from an error chain. Errors that do not carry a
// *apierror.Error are classified Unexpected.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return Unexpected
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
