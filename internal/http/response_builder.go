// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping from domain errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"faturas/internal/core"
	"faturas/internal/gateway"
	"faturas/internal/queue"
	"faturas/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.data)
}

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes returned in ErrorBody.Code.
const (
	CodeBadRequest  = "bad_request"
	CodeValidation  = "validation"
	CodeUnauth      = "unauthenticated"
	CodeNotFound    = "not_found"
	CodeRemote      = "remote_failure"
	CodeStorage     = "storage_unavailable"
	CodeRateLimited = "rate_limited"
	CodeTimeout     = "timeout"
	CodeInternal    = "internal"
)

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: message, Code: code})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed").
		Header("Allow", allowedMethods)
}

// StatusForError classifies err into a status code and an error code.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauth
	case errors.Is(err, services.ErrInvoiceNotFound), errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, services.ErrPaymentExceedsBalance), core.IsValidation(err):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, queue.ErrStorageUnavailable):
		return http.StatusInsufficientStorage, CodeStorage
	case errors.Is(err, gateway.ErrRemote), errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrConflict):
		return http.StatusBadGateway, CodeRemote
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	}
	return http.StatusInternalServerError, CodeInternal
}

// ErrorFor builds the error response for err. Internal errors do not leak
// their message.
func ErrorFor(err error) *JSONResponseBuilder {
	status, code := StatusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return ErrorResponse(status, code, msg)
}
