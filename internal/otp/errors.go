package otp

import "net/http"

// Error codes surfaced to the callable endpoints. The values are part of
// the web app contract.
const (
	CodeInvalidArgument    = "invalid-argument"
	CodeNotFound           = "not-found"
	CodeFailedPrecondition = "failed-precondition"
	CodeDeadlineExceeded   = "deadline-exceeded"
	CodeInternal           = "internal"
)

// Error is a structured callable error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return "otp: " + e.Code + ": " + e.Message
}

// E builds a structured error.
func E(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// HTTPStatus maps an error code onto an HTTP status for the REST surface.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case CodeDeadlineExceeded:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
