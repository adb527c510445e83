package domain

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors used across service boundaries.
var (
	ErrInvalidCredentialsFormat = errors.New("invalid credentials format")
	ErrAuthFailure              = errors.New("invalid username or password")
	ErrSessionInvalid           = errors.New("session invalid")
	ErrBackendUnavailable       = errors.New("backend unavailable")
	ErrValidation               = errors.New("validation failed")
)

// GenericBackendMessage is shown when the backend gives no usable message.
const GenericBackendMessage = "Something went wrong. Please try again."

// BackendError is a failed backend call. Message is safe to show to users.
type BackendError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Op + ": " + e.Message
	}
	return e.Op + ": " + ErrBackendUnavailable.Error()
}

// Is lets errors.Is match ErrBackendUnavailable.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// UserMessage returns the backend's message or a generic fallback.
func (e *BackendError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericBackendMessage
}

// UserMessage extracts a displayable message from err.
func UserMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.UserMessage()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return GenericBackendMessage
}

// ValidationError carries per-field messages for inline display.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrorResponse is the standard JSON error envelope returned to clients.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
