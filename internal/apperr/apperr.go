// Package apperr defines the categorized error envelope shared by every
// handler in this service. Handlers translate domain errors returned by
// internal/booking, internal/payment, internal/engine and
// internal/idempotency into one AppError so the HTTP surface always
// carries a stable {statusCode, errorCode, message, timestamp} shape,
// per spec.md §7 Error Handling Design.
package apperr

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the single error type the HTTP layer knows how to render.
// Code is a stable machine-readable string (e.g. "SEATS_NOT_AVAILABLE");
// it must never change meaning once shipped, since idempotent retries
// rely on clients matching it against a previous response.
type AppError struct {
	HTTPStatus int       `json:"-"`
	Code       string    `json:"errorCode"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Details    any       `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func new_(status int, code, msg string, details any) *AppError {
	return &AppError{HTTPStatus: status, Code: code, Message: msg, Timestamp: time.Now().UTC(), Details: details}
}

// Validation surfaces a 400 with the given stable code.
func Validation(code, msg string, details any) *AppError {
	return new_(http.StatusBadRequest, code, msg, details)
}

// NotFound surfaces a 404 with the given stable code.
func NotFound(code, msg string) *AppError {
	return new_(http.StatusNotFound, code, msg, nil)
}

// Forbidden surfaces a 403 with the given stable code.
func Forbidden(code, msg string) *AppError {
	return new_(http.StatusForbidden, code, msg, nil)
}

// Conflict surfaces a 409 with the given stable code.
func Conflict(code, msg string, details any) *AppError {
	return new_(http.StatusConflict, code, msg, details)
}

// Precondition surfaces a 400 for state-ordering failures (expired
// hold, showtime already started, booking not pending).
func Precondition(code, msg string) *AppError {
	return new_(http.StatusBadRequest, code, msg, nil)
}

// Internal surfaces a 500 for anything not otherwise classified.
func Internal(code, msg string) *AppError {
	return new_(http.StatusInternalServerError, code, msg, nil)
}

// As attempts to recover an *AppError from a generic error, falling
// back to a 500 INTERNAL envelope so every error path the handlers see
// ends up categorized.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return Internal("INTERNAL", err.Error())
}
