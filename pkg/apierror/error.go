package apierror

import (
	"encoding/json"
	"net/http"
)

// Error is an HTTP-facing error with a stable machine-readable code.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type envelope struct {
	Success bool   `json:"success"`
	Error   *Error `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

// ToJSON renders the error inside the standard {success:false,error:{...}}
// envelope.
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(envelope{Success: false, Error: e})
	return data
}

// New creates an error with an explicit status and code.
func New(statusCode int, code, message string) *Error {
	return &Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, "UNAUTHORIZED", orDefault(message, "Authentication required"))
}

// Forbidden creates a 403 Forbidden error.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, "FORBIDDEN", orDefault(message, "Access denied"))
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, "NOT_FOUND", orDefault(message, "Resource not found"))
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, "CONFLICT", message)
}

// StaleState creates a 409 error for a guarded transition whose expected
// predecessor status no longer matches.
func StaleState(message string) *Error {
	return New(http.StatusConflict, "STALE_STATE", message)
}

// InsufficientStock creates a 409 error for a reservation that could not be filled.
func InsufficientStock(message string) *Error {
	return New(http.StatusConflict, "INSUFFICIENT_STOCK", message)
}

// InsufficientBalance creates a 422 error for a payout the balance cannot cover.
func InsufficientBalance(message string) *Error {
	return New(http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", message)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, "RATE_LIMITED", orDefault(message, "Too many requests"))
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	return New(http.StatusInternalServerError, "INTERNAL_ERROR", orDefault(message, "An unexpected error occurred"))
}
