package backend

import (
	"errors"
	"net/http"
	"strings"
)

// Error kinds. Every error returned by this package wraps one of them.
var (
	ErrNotConfigured = errors.New("backend client not configured")
	ErrNetwork       = errors.New("network error")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
)

// APIError carries the backend's own messages next to the error kind.
type APIError struct {
	Op       string
	Status   int
	Messages []string
	Kind     error
}

func (e *APIError) Error() string {
	if msg := strings.Join(e.Messages, "; "); msg != "" {
		return msg
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return http.StatusText(e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// NewValidationError builds a validation error without touching the network.
func NewValidationError(messages ...string) error {
	return &APIError{Status: http.StatusUnprocessableEntity, Messages: messages, Kind: ErrValidation}
}

// KindFor maps an HTTP status to an error kind.
func KindFor(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return ErrValidation
	case status >= 500:
		return ErrNetwork
	default:
		return ErrValidation
	}
}

// IsTransient reports whether the user may simply try again.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// Message returns the text a user should see for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

// errorEnvelope accepts the error shapes the backend is known to emit.
type errorEnvelope struct {
	Error   interface{} `json:"error"`
	Message string      `json:"message"`
	Errors  []string    `json:"errors"`
}

func (e *errorEnvelope) messages() []string {
	if e == nil {
		return nil
	}

	var out []string
	for _, m := range e.Errors {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	if len(out) > 0 {
		return out
	}

	switch v := e.Error.(type) {
	case string:
		if v != "" {
			out = append(out, v)
		}
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok && msg != "" {
			out = append(out, msg)
		}
	}
	if len(out) == 0 && e.Message != "" {
		out = append(out, e.Message)
	}
	return out
}
