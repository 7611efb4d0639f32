// Package apierror defines the typed failures returned by the forum access layer.
//
// Every terminal failure is an *Error carrying a Kind plus enough context
// (endpoint, last status code, attempt count) to diagnose it without retrying.
// Callers match kinds with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apierror.ErrAuthenticationRequired) {
//		// prompt for login
//	}
//
// and recover the context with errors.As.
package apierror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	// KindRateLimited is an upstream rate-limit response. Absorbed by the retry engine.
	KindRateLimited Kind = "rate_limited"

	// KindTransientNetwork covers timeouts, resets and 5xx responses. Absorbed by the retry engine.
	KindTransientNetwork Kind = "transient_network"

	// KindChallengeRequired is an anti-bot interstitial. Absorbed by the retry engine.
	KindChallengeRequired Kind = "challenge_required"

	// KindExhaustedRetries is returned once the attempt budget is spent.
	KindExhaustedRetries Kind = "exhausted_retries"

	// KindAuthenticationRequired means an authenticated-only operation was
	// attempted without a session.
	KindAuthenticationRequired Kind = "authentication_required"

	// KindAuthenticationFailed means bad credentials, bad second factor or a
	// rejected API key.
	KindAuthenticationFailed Kind = "authentication_failed"

	// KindSecondFactorRequired means login needs a follow-up code.
	KindSecondFactorRequired Kind = "second_factor_required"

	// KindLoginInProgress rejects a login racing another one.
	KindLoginInProgress Kind = "login_in_progress"

	// KindPaginationOverrun means the page ceiling was exceeded.
	KindPaginationOverrun Kind = "pagination_overrun"

	// KindCancelled is a caller-initiated abort.
	KindCancelled Kind = "cancelled"

	// KindUpstreamRejected is a non-retryable HTTP error such as 404 or 403.
	KindUpstreamRejected Kind = "upstream_rejected"

	// KindInvalidResponse is a 2xx body that could not be decoded.
	KindInvalidResponse Kind = "invalid_response"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrRateLimited            = &Error{Kind: KindRateLimited}
	ErrTransientNetwork       = &Error{Kind: KindTransientNetwork}
	ErrChallengeRequired      = &Error{Kind: KindChallengeRequired}
	ErrExhaustedRetries       = &Error{Kind: KindExhaustedRetries}
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrAuthenticationFailed   = &Error{Kind: KindAuthenticationFailed}
	ErrSecondFactorRequired   = &Error{Kind: KindSecondFactorRequired}
	ErrLoginInProgress        = &Error{Kind: KindLoginInProgress}
	ErrPaginationOverrun      = &Error{Kind: KindPaginationOverrun}
	ErrCancelled              = &Error{Kind: KindCancelled}
	ErrUpstreamRejected       = &Error{Kind: KindUpstreamRejected}
	ErrInvalidResponse        = &Error{Kind: KindInvalidResponse}
)

// Error is a classified access-layer failure.
type Error struct {
	Kind       Kind
	Method     string
	Endpoint   string
	StatusCode int
	Attempts   int
	Message    string
	Err        error
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Endpoint != "" {
		if e.Method != "" {
			fmt.Fprintf(&b, " %s %s", e.Method, e.Endpoint)
		} else {
			fmt.Fprintf(&b, " %s", e.Endpoint)
		}
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithRequest returns a copy annotated with the request it belongs to.
func (e *Error) WithRequest(method, endpoint string) *Error {
	c := *e
	c.Method = method
	c.Endpoint = endpoint
	return &c
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// Retryable reports whether failures of this kind are absorbed by the retry engine.
func Retryable(kind Kind) bool {
	switch kind {
	case KindRateLimited, KindTransientNetwork, KindChallengeRequired:
		return true
	default:
		return false
	}
}
