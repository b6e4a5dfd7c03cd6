package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies transport failures so callers can decide whether to retry
type Kind int

const (
	KindNetwork    Kind = iota + 1 // transient, retryable
	KindAuth                       // terminal for the session, handed to re-authentication
	KindServer                     // 5xx / 429, retryable with backoff
	KindValidation                 // 4xx on a request, not retryable
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against *Error
var (
	ErrNetwork    = errors.New("network error")
	ErrAuth       = errors.New("authentication error")
	ErrServer     = errors.New("server error")
	ErrValidation = errors.New("validation error")
)

// Error is returned by every pull and push channel operation
type Error struct {
	Kind       Kind
	Op         string // e.g. "fetch_page", "mark_read"
	StatusCode int    // 0 when the request never got a response
	Message    string // server supplied message, if any
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrAuth) and friends match on Kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrServer:
		return e.Kind == KindServer
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

func networkError(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// statusError maps a non-2xx HTTP status onto the taxonomy
func statusError(op string, status int, message string) *Error {
	e := &Error{Op: op, StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindValidation
	}
	return e
}

// KindOf returns the Kind of err, or 0 when err is not a transport error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether err is worth retrying after a delay
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindServer
}

// IsAuthError reports whether err means the session token was rejected
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
