package attendance

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model (assets/disposals/lends と同型) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"

	CodeInvalidToken     Code = "INVALID_TOKEN"
	CodeExpired          Code = "EXPIRED"
	CodeAlreadyUsed      Code = "ALREADY_USED"
	CodeWrongAction      Code = "WRONG_ACTION"
	CodeNoOpenSession    Code = "NO_OPEN_SESSION"
	CodeAlreadyCheckedIn Code = "ALREADY_CHECKED_IN"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeRateLimited      Code = "RATE_LIMITED"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func errInvalidToken() *APIError {
	return &APIError{Code: CodeInvalidToken, Message: "token or code is not valid"}
}
func errExpired() *APIError {
	return &APIError{Code: CodeExpired, Message: "token or code has expired"}
}
func errAlreadyUsed() *APIError {
	return &APIError{Code: CodeAlreadyUsed, Message: "token or code has already been used"}
}
func errWrongAction(got Action) *APIError {
	return &APIError{Code: CodeWrongAction, Message: fmt.Sprintf("this credential is for %s", got)}
}
func errNoOpenSession() *APIError {
	return &APIError{Code: CodeNoOpenSession, Message: "no open check-in for this project"}
}
func errAlreadyCheckedIn() *APIError {
	return &APIError{Code: CodeAlreadyCheckedIn, Message: "already checked in to this project"}
}
func errUnauthenticated() *APIError {
	return &APIError{Code: CodeUnauthenticated, Message: "login required"}
}
func errRateLimited() *APIError {
	return &APIError{Code: CodeRateLimited, Message: "too many code attempts, try again later"}
}

// CodeOf: APIError でなければ INTERNAL
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound, CodeInvalidToken:
		return http.StatusNotFound
	case CodeExpired:
		return http.StatusGone
	case CodeAlreadyUsed, CodeWrongAction, CodeNoOpenSession, CodeAlreadyCheckedIn:
		return http.StatusConflict
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
