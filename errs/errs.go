// Package errs holds the error taxonomy reported back to clients.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The string value is what clients see
// in the "code" field of an error frame.
type Kind string

const (
	KindMalformedPayload  Kind = "malformed_payload"
	KindMissingField      Kind = "missing_field"
	KindUnknownCommand    Kind = "unknown_command"
	KindRoomNotFound      Kind = "room_not_found"
	KindRoomFull          Kind = "room_full"
	KindPlayerNotFound    Kind = "player_not_found"
	KindInvalidSeatList   Kind = "invalid_seat_list"
	KindMissingIdentifier Kind = "missing_identifier"
	KindRateLimited       Kind = "rate_limited"
	KindInternal          Kind = "internal"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrMalformedPayload  = &Error{Kind: KindMalformedPayload}
	ErrMissingField      = &Error{Kind: KindMissingField}
	ErrUnknownCommand    = &Error{Kind: KindUnknownCommand}
	ErrRoomNotFound      = &Error{Kind: KindRoomNotFound}
	ErrRoomFull          = &Error{Kind: KindRoomFull}
	ErrPlayerNotFound    = &Error{Kind: KindPlayerNotFound}
	ErrInvalidSeatList   = &Error{Kind: KindInvalidSeatList}
	ErrMissingIdentifier = &Error{Kind: KindMissingIdentifier}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
)

// Error is a structured failure: a kind plus optional detail.
type Error struct {
	Kind   Kind
	Detail string
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind from err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MissingField is shorthand for the most common validation failure.
func MissingField(field string) *Error {
	return &Error{Kind: KindMissingField, Detail: field}
}
