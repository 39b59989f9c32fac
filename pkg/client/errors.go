package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failure returned by the client.
//
// Kinds form a closed tree: every kind except KindError refines exactly one
// broader kind, so callers may switch on the specific kind or test for the
// broader category with Refines or errors.Is.
type Kind string

const (
	// KindError is the root of the taxonomy and the kind of unclassified failures.
	KindError Kind = "error"

	// KindConfiguration reports a missing API key or an invalid cache/TTL combination.
	KindConfiguration Kind = "configuration"

	// KindConnection reports a transport-level connection failure.
	KindConnection Kind = "connection"

	// KindTimeout reports a request that exceeded the configured timeout.
	KindTimeout Kind = "timeout"

	// KindAPI reports a 4xx response or a generic client-side API failure.
	KindAPI Kind = "api"

	// KindRateLimit reports HTTP 429.
	KindRateLimit Kind = "rate_limit"

	// KindService reports a 5xx response.
	KindService Kind = "service"

	// KindResponse reports an empty or undecodable response payload.
	KindResponse Kind = "response"

	// KindNotFound reports HTTP 404, usually an unknown model. It refines
	// KindAPI: errors.Is(err, ErrAPI) and Refines(KindAPI) hold, but
	// KindOf returns KindNotFound, so compare with Refines rather than ==
	// to catch every 4xx.
	KindNotFound Kind = "not_found"

	// KindCache is reserved for cache-layer failures. The cache adapter
	// degrades instead of failing, so the client never returns it.
	KindCache Kind = "cache"
)

// Parent returns the kind k refines. KindError has no parent and returns "".
func (k Kind) Parent() Kind {
	switch k {
	case KindTimeout:
		return KindConnection
	case KindRateLimit, KindService, KindResponse, KindNotFound:
		return KindAPI
	case KindError:
		return ""
	default:
		return KindError
	}
}

// Refines reports whether k equals target or is a (transitive) refinement of it.
func (k Kind) Refines(target Kind) bool {
	for cur := k; cur != ""; cur = cur.Parent() {
		if cur == target {
			return true
		}
	}
	return false
}

// Sentinels for errors.Is. A match succeeds when the error's kind refines
// the sentinel's kind, so errors.Is(err, ErrAPI) holds for a rate limit.
var (
	ErrGeneric       = &Error{Kind: KindError}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrConnection    = &Error{Kind: KindConnection}
	ErrTimeout       = &Error{Kind: KindTimeout}
	ErrAPI           = &Error{Kind: KindAPI}
	ErrRateLimit     = &Error{Kind: KindRateLimit}
	ErrService       = &Error{Kind: KindService}
	ErrResponse      = &Error{Kind: KindResponse}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrCache         = &Error{Kind: KindCache}
)

// Error is the single concrete error type returned by the client.
type Error struct {
	Kind       Kind
	StatusCode int // HTTP status when the failure came from a response, 0 otherwise
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gemini %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("gemini %s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel that e's kind refines.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil || t.StatusCode != 0 {
		return false
	}
	return e.Kind.Refines(t.Kind)
}

// KindOf returns the taxonomy kind of err, or "" when err is nil or
// carries no *Error in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
