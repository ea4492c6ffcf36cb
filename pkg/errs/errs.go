// Package errs defines the error taxonomy shared by the widget-data pipeline.
//
// Errors are classified by marker so callers can decide how to surface them:
// validation errors never reach the store, auth errors are terminal for the
// call, transport errors are retried by the next poll tick and parse problems
// degrade to "no data".
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Class is the handling category of an error.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassAuth
	ClassTransport
	ClassParse
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuth:
		return "auth"
	case ClassTransport:
		return "transport"
	case ClassParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Sentinel markers. Use errors.Is against these, never string matching.
var (
	ErrValidation         = errors.New("invalid widget configuration")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrCredentialsMissing = errors.New("store credentials missing")
	ErrTransport          = errors.New("store request failed")
	ErrTimeout            = errors.New("store request timed out")
	ErrParse              = errors.New("malformed store response")
)

const adminHint = "contact your administrator"

// TransportError is a non-2xx answer from the store.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("store unreachable: %s", e.Body)
	}
	return fmt.Sprintf("store returned HTTP %d: %s", e.Status, e.Body)
}

// Validation marks err as a caller-side configuration error.
func Validation(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// Unauthenticated reports a missing session or a token the store rejected.
func Unauthenticated(reason string) error {
	return errors.WithHint(errors.Mark(errors.Newf("unauthenticated: %s", reason), ErrUnauthenticated), adminHint)
}

// TenantNotFound reports that no tenant could be resolved for the subject.
func TenantNotFound(subject string) error {
	return errors.WithHint(errors.Mark(errors.Newf("no tenant for %q", subject), ErrTenantNotFound), adminHint)
}

// CredentialsMissing reports a tenant record without usable store credentials.
func CredentialsMissing(tenantID string) error {
	return errors.WithHint(
		errors.Mark(errors.Newf("tenant %q has no store credentials configured", tenantID), ErrCredentialsMissing),
		adminHint)
}

// CredentialsIncomplete reports credentials that reached the store client
// without an org or a token.
func CredentialsIncomplete() error {
	return errors.WithHint(
		errors.Mark(errors.New("store credentials are incomplete"), ErrCredentialsMissing),
		adminHint)
}

// Transport wraps a store failure with its status code and body.
func Transport(status int, body string) error {
	return errors.Mark(&TransportError{Status: status, Body: body}, ErrTransport)
}

// Timeout wraps cause as a store timeout.
func Timeout(cause error) error {
	return errors.Mark(errors.Wrap(cause, "store request timed out"), ErrTimeout)
}

// ClassOf returns the handling class of err.
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrTenantNotFound),
		errors.Is(err, ErrCredentialsMissing):
		return ClassAuth
	case errors.Is(err, ErrTransport), errors.Is(err, ErrTimeout):
		return ClassTransport
	case errors.Is(err, ErrParse):
		return ClassParse
	default:
		return ClassUnknown
	}
}

// Retryable reports whether the next poll tick may succeed where err failed.
func Retryable(err error) bool {
	return ClassOf(err) == ClassTransport
}

// UserMessage renders err for the UI. Auth errors of different kinds get
// different messages so tenant and credential problems can be told apart.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	switch {
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrUnauthenticated):
		msg = "Not authenticated. Please sign in again"
	case errors.Is(err, ErrTenantNotFound):
		msg = "User has no company assigned"
	case errors.Is(err, ErrCredentialsMissing):
		msg = "Store credentials are not configured for this company"
	case errors.Is(err, ErrTimeout):
		return "The data store did not answer in time"
	case errors.Is(err, ErrTransport):
		var te *TransportError
		if errors.As(err, &te) && te.Status != 0 {
			return fmt.Sprintf("The data store returned HTTP %d", te.Status)
		}
		return "The data store is unreachable"
	default:
		return "Internal server error"
	}
	if hint := errors.FlattenHints(err); hint != "" {
		msg += "; " + hint
	}
	return msg + "."
}
