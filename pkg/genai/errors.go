package genai

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a generation failure for user-facing handling.
type Kind string

const (
	// KindContentPolicy means the service rejected the request content;
	// the user should revise the prompt.
	KindContentPolicy Kind = "content_policy"
	// KindInvalidParams means the request parameters were rejected; a
	// configuration problem, not a transient one.
	KindInvalidParams Kind = "invalid_params"
	// KindRateLimit means a rate or quota limit was hit; try again later.
	KindRateLimit Kind = "rate_limit"
	// KindUnknown covers transport failures and anything unclassified.
	KindUnknown Kind = "unknown"
)

// Error is a classified generation failure. Everything outside this
// package branches on Kind, never on message text.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether trying a fallback model could help.
func (e *Error) Retryable() bool { return e.Kind == KindUnknown }

// KindOf returns the classification of err, or KindUnknown for errors
// that did not originate from the generation service.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// classify translates an upstream failure into a typed Error. The
// service only exposes free-text messages, so all substring matching on
// them is isolated here.
func classify(statusCode int, message string, cause error) *Error {
	lower := strings.ToLower(message)

	switch {
	case statusCode == 429 || strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "resource_exhausted"):
		return &Error{
			Kind:    KindRateLimit,
			Message: "generation quota exceeded, try again later",
			cause:   cause,
		}
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") ||
		strings.Contains(lower, "prohibited"):
		return &Error{
			Kind:    KindContentPolicy,
			Message: "the request was rejected by the content policy, revise the prompt",
			cause:   cause,
		}
	case statusCode == 400 || strings.Contains(lower, "invalid argument") ||
		strings.Contains(lower, "invalid_argument"):
		return &Error{
			Kind:    KindInvalidParams,
			Message: "generation parameters were rejected, check the configuration",
			cause:   cause,
		}
	default:
		return &Error{
			Kind:    KindUnknown,
			Message: "the generation service failed",
			cause:   cause,
		}
	}
}
