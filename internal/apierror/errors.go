// Package apierror defines the error taxonomy for upstream API failures.
// Every error crossing the gateway core boundary carries exactly one Kind,
// and the SMTP session engine owns the single Kind-to-reply mapping.
package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream or parsing failure.
type Kind int

const (
	// KindAuthentication means the upstream rejected the credentials (401/403).
	KindAuthentication Kind = iota
	// KindValidation means the upstream rejected the request content, or
	// every recipient of a fan-out failed.
	KindValidation
	// KindRateLimit means the upstream returned 429.
	KindRateLimit
	// KindServer means the upstream returned 5xx (after retries) or violated
	// its response contract.
	KindServer
	// KindNetwork means a transport error or timeout persisted after retries.
	KindNetwork
	// KindFormat means the message bytes could not be parsed as MIME.
	KindFormat
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Error is an upstream failure tagged with its Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind from err. The second return is false when err does
// not carry an *Error anywhere in its chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
