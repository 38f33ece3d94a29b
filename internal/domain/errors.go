package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies failures surfaced by the sync layer.
type ErrorKind int

const (
	// KindTransport is a network-level failure. Always recoverable by the
	// backoff and poll-retry machinery, never a blocking failure.
	KindTransport ErrorKind = iota
	// KindValidation is a locally detected precondition failure raised
	// before any network call is made.
	KindValidation
	// KindPrecondition is an action attempted while required server-side
	// state does not hold, detected locally to avoid a wasted round trip.
	KindPrecondition
	// KindRemote is a non-success server response carrying an error token.
	KindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error. For KindRemote the Token carries the
// server's error token verbatim; the console never reinterprets it.
type Error struct {
	Kind  ErrorKind
	Token string
	cause error
}

func (e *Error) Error() string {
	switch {
	case e.Token != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Token)
	case e.cause != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.cause)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.cause }

// TransportErr wraps a network failure.
func TransportErr(cause error, msg string) error {
	return &Error{Kind: KindTransport, cause: errors.Wrap(cause, msg)}
}

// ValidationErr reports a local input failure.
func ValidationErr(format string, args ...any) error {
	return &Error{Kind: KindValidation, cause: errors.Errorf(format, args...)}
}

// PreconditionErr reports missing server-side state detected locally.
func PreconditionErr(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, cause: errors.Errorf(format, args...)}
}

// RemoteErr carries a server rejection token through unchanged.
func RemoteErr(token string) error {
	return &Error{Kind: KindRemote, Token: token}
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsTransport(err error) bool    { return isKind(err, KindTransport) }
func IsValidation(err error) bool   { return isKind(err, KindValidation) }
func IsPrecondition(err error) bool { return isKind(err, KindPrecondition) }
func IsRemote(err error) bool       { return isKind(err, KindRemote) }

// RejectionToken extracts the server token from a remote rejection.
func RejectionToken(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRemote {
		return e.Token, true
	}
	return "", false
}
