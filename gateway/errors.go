package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Code is the machine-readable reason of a backend failure.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeWrongPassword      Code = "wrong_password"
	CodeEmailNotVerified   Code = "email_not_verified"
	CodeInvalidCode        Code = "invalid_code"
	CodeInvalidResetCode   Code = "invalid_reset_code"
	CodeAlreadyLinked      Code = "already_linked"
	CodeProviderConflict   Code = "provider_conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeLastAdmin          Code = "last_admin"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInviteNotFound     Code = "invite_not_found"
	CodeInviteExpired      Code = "invite_expired"
	CodeInviteExhausted    Code = "invite_exhausted"
	CodeInviteWrongTarget  Code = "invite_wrong_target"
	CodeAlreadyMember      Code = "already_member"
	CodeUnavailable        Code = "unavailable"
)

// Error is the typed failure every Gateway implementation returns.
type Error struct {
	Status  int
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode extracts the Code of a gateway failure. Context cancellation
// and deadlines report CodeUnavailable; anything else unknown reports "".
func ErrorCode(err error) Code {
	if err == nil {
		return ""
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeUnavailable
	}
	return ""
}

// Unavailable wraps a transport-level failure.
func Unavailable(err error) *Error {
	return &Error{Status: 0, Code: CodeUnavailable, Message: "backend unavailable", Err: err}
}

// codeFromResponse derives a Code when the backend did not send one. The
// detail texts are the ones the reference REST backend produces.
func codeFromResponse(status int, detail string) Code {
	d := strings.ToLower(detail)
	switch {
	case strings.Contains(d, "not verified"):
		return CodeEmailNotVerified
	case strings.Contains(d, "old password"):
		return CodeWrongPassword
	case strings.Contains(d, "invalid credentials"), strings.Contains(d, "password is incorrect"):
		return CodeInvalidCredentials
	case strings.Contains(d, "invite not found"):
		return CodeInviteNotFound
	case strings.Contains(d, "invite expired"):
		return CodeInviteExpired
	case strings.Contains(d, "max uses"):
		return CodeInviteExhausted
	case strings.Contains(d, "not for you"):
		return CodeInviteWrongTarget
	case strings.Contains(d, "already a member"):
		return CodeAlreadyMember
	case strings.Contains(d, "already linked"):
		return CodeAlreadyLinked
	case strings.Contains(d, "different provider"):
		return CodeProviderConflict
	case strings.Contains(d, "transferring authority"), strings.Contains(d, "last admin"):
		return CodeLastAdmin
	case strings.Contains(d, "invalid or expired"):
		return CodeInvalidResetCode
	case strings.Contains(d, "invalid code"), strings.Contains(d, "verification code"):
		return CodeInvalidCode
	}

	switch {
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status >= 500:
		return CodeUnavailable
	default:
		return CodeValidation
	}
}
