// Package response provides the unified API response envelope.
package response

import (
	"net/http"
	"time"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success).
	Code int `json:"code"`

	// HTTPCode is the HTTP status code, echoed for client convenience.
	HTTPCode int `json:"http_code,omitempty"`

	// Message is a human-readable message.
	Message string `json:"message"`

	// Data contains the response payload (nil for errors).
	Data any `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing.
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the response timestamp (Unix milliseconds).
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) *Response {
	return &Response{
		Code:     0,
		HTTPCode: http.StatusOK,
		Message:  "success",
		Data:     data,
	}
}

// Created creates a 201 response with data.
func Created(data any) *Response {
	return &Response{
		Code:     0,
		HTTPCode: http.StatusCreated,
		Message:  "created",
		Data:     data,
	}
}

// Err creates an error response from an Errno.
func Err(e *errors.Errno) *Response {
	return ErrWithLang(e, "")
}

// ErrWithLang creates an error response with a language-specific message.
func ErrWithLang(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:     e.Code,
		HTTPCode: e.HTTPStatus(),
		Message:  e.Message(lang),
	}
}

// WithRequestID adds the request ID to the response.
func (r *Response) WithRequestID(requestID string) *Response {
	r.RequestID = requestID
	return r
}

// WithTimestamp stamps the response with t.
func (r *Response) WithTimestamp(t time.Time) *Response {
	r.Timestamp = t.UnixMilli()
	return r
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Code == 0
}

// HTTPStatus returns the HTTP status code for this response.
func (r *Response) HTTPStatus() int {
	if r.HTTPCode != 0 {
		return r.HTTPCode
	}
	if r.Code == 0 {
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}

	switch errors.GetCategory(r.Code) {
	case errors.CategoryRequest:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryPermission:
		return http.StatusForbidden
	case errors.CategoryResource:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
