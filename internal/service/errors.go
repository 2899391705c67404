package service

import "github.com/pkg/errors"

type ErrorCode string

const (
	ErrorCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrorCodeAlreadyInTeam     ErrorCode = "ALREADY_IN_TEAM"
	ErrorCodeTeamFull          ErrorCode = "TEAM_FULL"
	ErrorCodeDuplicatePending  ErrorCode = "DUPLICATE_PENDING"
	ErrorCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrorCodeLeaderCannotLeave ErrorCode = "LEADER_CANNOT_LEAVE"
	ErrorCodeTeamExists        ErrorCode = "TEAM_EXISTS"
	ErrorCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorCodeUnspecified       ErrorCode = "UNSPECIFIED"
	ErrorCodeInvalidBody       ErrorCode = "INVALID_BODY"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	cause error
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// wrapError keeps the underlying failure reachable through errors.As so the
// transactor can still see driver errors, without exposing it in responses.
func wrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// asError converts whatever came out of a transaction into a service error.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return wrapError(ErrorCodeUnspecified, "transaction failed", err)
}
