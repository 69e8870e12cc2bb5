package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2

	CodeProviderUnavailable Code = 10
	CodeUserDeclined        Code = 11
	CodeNetworkMismatch     Code = 12
	CodeInsufficientFunds   Code = 13
	CodeOnChainRejected     Code = 14
	CodeUnconfirmed         Code = 15
	CodeFeedUnavailable     Code = 16

	CodeRateLimited Code = 20
	CodeUnavailable Code = 21
	CodeAuth        Code = 22
	CodeStale       Code = 23
	CodeBlocked     Code = 24
)

// RetryClass tells a caller what to do after a failed operation.
type RetryClass string

const (
	RetrySafe         RetryClass = "retry_safe"
	RetryNeedsUser    RetryClass = "user_must_act"
	RetryInvestigate  RetryClass = "needs_investigation"
	RetryUnclassified RetryClass = "unclassified"
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func Is(err error, code Code) bool {
	if cliErr, ok := As(err); ok {
		return cliErr.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// ClassOf maps an error to the action its caller should take.
func ClassOf(err error) RetryClass {
	cliErr, ok := As(err)
	if !ok {
		return RetryUnclassified
	}
	switch cliErr.Code {
	case CodeProviderUnavailable, CodeNetworkMismatch, CodeFeedUnavailable, CodeRateLimited, CodeUnavailable:
		return RetrySafe
	case CodeUserDeclined, CodeInsufficientFunds, CodeAuth:
		return RetryNeedsUser
	case CodeOnChainRejected, CodeUnconfirmed:
		return RetryInvestigate
	default:
		return RetryUnclassified
	}
}
