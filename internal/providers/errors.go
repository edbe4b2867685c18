package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind partitions provider failures by what the caller should do
// about them. Classification happens exactly once, at the HTTP boundary
// in classifyStatus; everything above inspects the kind and never the
// raw status code.
type ErrorKind string

const (
	// KindAuth means the provider rejected our credentials. Not retryable
	// within a request; the provider is marked unavailable.
	KindAuth ErrorKind = "auth"

	// KindRateLimit means the provider throttled us. Retryable with backoff.
	KindRateLimit ErrorKind = "rate_limit"

	// KindUpstream is a 5xx or transport failure on the provider side.
	// Retryable with backoff.
	KindUpstream ErrorKind = "upstream"

	// KindValidation means our request was malformed or over a ceiling.
	// Never retryable; retrying an invalid request cannot succeed.
	KindValidation ErrorKind = "validation"

	// KindParse means the provider returned 2xx but the body had no usable
	// content. Treated as transient and retryable.
	KindParse ErrorKind = "parse"
)

// Error is the typed failure returned by every provider adapter and by
// the gateway.
type Error struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Detail   string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Detail)
}

// Retryable reports whether another attempt against the same provider
// could plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindUpstream, KindParse:
		return true
	}
	return false
}

// AsError extracts a typed provider error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// classifyStatus maps an upstream HTTP status to an error kind. This is
// the single place status codes become typed errors.
func classifyStatus(provider string, status int, detail string) *Error {
	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status >= 500:
		kind = KindUpstream
	case status == http.StatusBadRequest:
		kind = KindValidation
	default:
		kind = KindUpstream
	}
	return &Error{Kind: kind, Provider: provider, Status: status, Detail: detail}
}

// transportError wraps a network-level failure (connection refused,
// timeout) as a retryable upstream error.
func transportError(provider string, err error) *Error {
	return &Error{Kind: KindUpstream, Provider: provider, Detail: err.Error()}
}

// parseError flags a 2xx response with no usable content.
func parseError(provider, detail string) *Error {
	return &Error{Kind: KindParse, Provider: provider, Status: http.StatusOK, Detail: detail}
}

// validationError flags a request rejected before any network call.
func validationError(provider, detail string) *Error {
	return &Error{Kind: KindValidation, Provider: provider, Detail: detail}
}
