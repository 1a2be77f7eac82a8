package llm

import (
	"errors"
	"fmt"
)

// Kind classifies LLM call failures, independent of provider.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindUpstream5xx Kind = "upstream_5xx"
	KindAuth        Kind = "auth"
	KindParse       Kind = "parse"
	KindNotFound    Kind = "not_found"
	KindQuota       Kind = "quota"
	KindInternal    Kind = "internal"
)

// Error wraps a provider failure with its taxonomy kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified LLM error.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// Retryable reports whether a failure is worth another attempt.
// Auth, parse and not_found failures repeat deterministically.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindUpstream5xx, KindRateLimited:
		return true
	default:
		return false
	}
}
