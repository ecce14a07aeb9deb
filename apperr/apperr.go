// Package apperr defines the error kinds surfaced by the payment core and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	Validation   Kind = "validation"
	NotFound     Kind = "not_found"
	Provider     Kind = "provider"
	Transport    Kind = "transport"
	Auth         Kind = "auth"
	Verification Kind = "verification"
	Internal     Kind = "internal"
)

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind       Kind
	Message    string   // safe to show to API clients
	Violations []string // validation rules that failed, in order
	Provider   string   // adapter that produced the error, if any
	Err        error    // cause, for logs only
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" [" + e.Provider + "]")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if len(e.Violations) > 0 {
		b.WriteString(" (" + strings.Join(e.Violations, "; ") + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func ValidationErr(violations []string) *Error {
	return &Error{Kind: Validation, Message: "Validation failed", Violations: violations}
}

func NotFoundErr(format string, args ...any) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

func ProviderErr(provider, message string, cause error) *Error {
	return &Error{Kind: Provider, Provider: provider, Message: message, Err: cause}
}

func TransportErr(provider string, cause error) *Error {
	return &Error{Kind: Transport, Provider: provider, Message: "Unable to reach " + provider, Err: cause}
}

// AuthErr never carries the rejected payload.
func AuthErr(provider string) *Error {
	return &Error{Kind: Auth, Provider: provider, Message: "Invalid webhook signature"}
}

func VerificationErr(cause error) *Error {
	msg := "Payment verification failed"
	var inner *Error
	if errors.As(cause, &inner) && inner.Message != "" {
		msg += ": " + inner.Message
	}
	return &Error{Kind: Verification, Message: msg, Err: cause}
}

func InternalErr(message string, cause error) *Error {
	return &Error{Kind: Internal, Message: message, Err: cause}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the outermost kind in the chain, Internal for foreign errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return Internal
}

// Has reports whether any *Error in the chain has kind k.
func Has(err error, k Kind) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok && ae.Kind == k {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Retryable is true when the failure was a transport problem; the stored
// state was left untouched and the caller may try again.
func Retryable(err error) bool {
	return Has(err, Transport)
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Auth:
		return http.StatusUnauthorized
	case Provider:
		return http.StatusBadGateway
	case Transport:
		return http.StatusGatewayTimeout
	case Verification:
		if Retryable(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.Message != "" && ae.Kind != Internal {
		return ae.Message
	}
	return "Internal server error"
}
