// Package apperr defines the error kinds the HTTP layer knows how to render.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input. Fields carries one entry per
// rejected field, in request order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "Validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a field failure and returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ConfigError means the server is missing settings it needs to serve the
// request.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// UpstreamError wraps a failed call to an external HTTP dependency.
type UpstreamError struct {
	Service string
	Public  string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func Validation(field, message string) *ValidationError {
	return (&ValidationError{}).Add(field, message)
}

func Conflict(message string) error { return &ConflictError{Message: message} }

func Auth(err error) error { return &AuthError{Err: err} }

func Config(message string) error { return &ConfigError{Message: message} }

// Status maps err to an HTTP status code and the message safe to show a
// client. Unknown errors map to 500 with a generic message.
func Status(err error) (int, string) {
	var (
		validation *ValidationError
		conflict   *ConflictError
		auth       *AuthError
		config     *ConfigError
		upstream   *UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "Validation failed"
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Message
	case errors.As(err, &auth):
		return http.StatusUnauthorized, auth.Error()
	case errors.As(err, &config):
		return http.StatusInternalServerError, config.Message
	case errors.As(err, &upstream):
		msg := upstream.Public
		if msg == "" {
			msg = "upstream service unavailable"
		}
		return http.StatusBadGateway, msg
	default:
		return http.StatusInternalServerError, "Server error"
	}
}
