package errors

import (
	"fmt"
	"math"
	"time"
)

// ErrorType classifies failures of the Mastodon client and its callers.
type ErrorType string

const (
	ErrorTypeInvalidInstance ErrorType = "invalid_instance"
	ErrorTypeNotMastodon     ErrorType = "not_mastodon"
	ErrorTypeHTTP            ErrorType = "http"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeParsing         ErrorType = "parsing"
	ErrorTypeNotAuthorized   ErrorType = "not_authorized"
	ErrorTypeAccountNotFound ErrorType = "account_not_found"
)

// Error is a typed failure with an optional HTTP status code.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a typed error without an HTTP status code.
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates a typed error with a formatted message.
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// NewHTTP creates a typed error carrying an HTTP status code.
func NewHTTP(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Message: msg, Code: code}
}

// RateLimitError signals an HTTP 429 and carries the server-supplied reset
// time. It is recoverable by waiting once; a second consecutive occurrence
// at the same call site is fatal.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.Reset.Format(time.RFC3339))
}

// Sleeper abstracts blocking waits so tests can observe them.
type Sleeper func(d time.Duration)

// Wait blocks until the reset time has passed. The remaining time is rounded
// up to whole seconds, with a small margin added so the retry lands after the
// server-side window actually opens. A reset in the past returns immediately.
func (e *RateLimitError) Wait() {
	e.WaitWith(time.Sleep, nil)
}

// WaitWith is Wait with an injectable sleep function and an optional progress
// callback invoked once per waited second.
func (e *RateLimitError) WaitWith(sleep Sleeper, progress func(waited, total int)) {
	remaining := time.Until(e.Reset)
	if remaining <= 0 {
		return
	}
	seconds := int(math.Ceil(remaining.Seconds()))
	for i := 0; i < seconds; i++ {
		sleep(time.Second)
		if progress != nil {
			progress(i+1, seconds)
		}
	}
	sleep(100 * time.Millisecond)
}
