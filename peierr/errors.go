package peierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the categories the HTTP layer and retry
// policies care about.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnauthenticated
	KindAuthorization
	KindNotFound
	KindConflict
	KindInvalidTTL
	KindExpiredToken
	KindRevokedToken
	KindPersistence
)

type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code, e.g. "VERSION_CONFLICT"
	Message string
	Err     error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg}
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Code: "NOT_AUTHENTICATED", Message: "authentication required"}
}

func Authorization(reason string) *Error {
	return &Error{Kind: KindAuthorization, Code: "FORBIDDEN", Message: reason}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Code: "VERSION_CONFLICT", Message: msg}
}

func InvalidTTL(msg string) *Error {
	return &Error{Kind: KindInvalidTTL, Code: "INVALID_TTL", Message: msg}
}

func ExpiredToken() *Error {
	return &Error{Kind: KindExpiredToken, Code: "TOKEN_EXPIRED", Message: "access token has expired"}
}

func RevokedToken() *Error {
	return &Error{Kind: KindRevokedToken, Code: "TOKEN_REVOKED", Message: "access token was revoked"}
}

func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: "PERSISTENCE_ERROR", Message: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidTTL:
		return http.StatusBadRequest
	case KindUnauthenticated, KindExpiredToken:
		return http.StatusUnauthorized
	case KindAuthorization, KindRevokedToken:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the stable error code, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}
