// Package apierror defines the stable (kind, message) errors returned to API
// callers and the echo error handler that renders them.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure. Kinds are part of the API contract.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindNotFound       Kind = "not_found"
	KindNotInSchedule  Kind = "not_in_schedule"
	KindSlotBusy       Kind = "slot_busy"
	KindForbidden      Kind = "forbidden"
	KindInternal       Kind = "internal_error"
)

// Error is a caller-facing failure.
type Error struct {
	Kind    Kind   `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSlotBusy)
// holds regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrNotInSchedule  = &Error{Kind: KindNotInSchedule}
	ErrSlotBusy       = &Error{Kind: KindSlotBusy}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrInternal       = &Error{Kind: KindInternal}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...any) *Error {
	return New(KindInvalidRequest, format, args...)
}

func NotFound(format string, args ...any) *Error { return New(KindNotFound, format, args...) }

func NotInSchedule(format string, args ...any) *Error {
	return New(KindNotInSchedule, format, args...)
}

func SlotBusy(format string, args ...any) *Error { return New(KindSlotBusy, format, args...) }

func Forbidden(format string, args ...any) *Error { return New(KindForbidden, format, args...) }

// KindOf returns the kind carried by err, or KindInternal when err is not an
// *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNotInSchedule, KindSlotBusy:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
