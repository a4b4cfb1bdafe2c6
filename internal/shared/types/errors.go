package types

import (
	"fmt"
	"net/http"
)

// AppError is a JSON:API error object
type AppError struct {
	// ID identifies this occurrence, set to the trace id where one exists
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`

	code int
}

// ErrorResponse is the top-level error document
type ErrorResponse struct {
	Errors []*AppError `json:"errors"`
}

// NewAppError creates an error for status. The title is the status text.
func NewAppError(status int, detail string) *AppError {
	return &AppError{
		Status: fmt.Sprintf("%d", status),
		Title:  http.StatusText(status),
		Detail: detail,
		code:   status,
	}
}

// NotFound reports a missing entity
func NotFound(id string) *AppError {
	return NewAppError(http.StatusNotFound, fmt.Sprintf("Entity with id %s not found", id))
}

// Internal wraps an unexpected error as a 500
func Internal(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, err.Error())
}

// Error implements error
func (e *AppError) Error() string {
	if e.Detail == "" {
		return e.Status + " " + e.Title
	}
	return e.Status + " " + e.Title + ": " + e.Detail
}

// StatusCode returns the HTTP status
func (e *AppError) StatusCode() int {
	return e.code
}

// Response wraps e in an error document
func (e *AppError) Response() ErrorResponse {
	return ErrorResponse{Errors: []*AppError{e}}
}
