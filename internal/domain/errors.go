package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a business error reported by the dashboard API.
type ErrorKind string

const (
	ErrorKindAlreadyRunning ErrorKind = "already_running"
	ErrorKindNotRunning     ErrorKind = "not_running"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// APIError is a server-reported error carried in a response's "error" field.
type APIError struct {
	Kind    ErrorKind
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError builds an APIError, preferring the machine-readable kind when
// the server sent one and falling back to the message text otherwise.
func NewAPIError(kind, message string) *APIError {
	k := ErrorKind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case ErrorKindAlreadyRunning, ErrorKindNotRunning:
	default:
		k = ClassifyMessage(message)
	}
	return &APIError{Kind: k, Message: message}
}

// ClassifyMessage recognizes the benign race messages by text.
func ClassifyMessage(message string) ErrorKind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "already running"):
		return ErrorKindAlreadyRunning
	case strings.Contains(lower, "not running"):
		return ErrorKindNotRunning
	default:
		return ErrorKindUnknown
	}
}

// IsBenignMessage reports whether a message describes a start/stop race that
// should not be shown to the user.
func IsBenignMessage(message string) bool {
	return ClassifyMessage(message) != ErrorKindUnknown
}

// IsBenignRace reports whether err is an APIError for a start/stop race.
func IsBenignRace(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ErrorKindAlreadyRunning || apiErr.Kind == ErrorKindNotRunning
	}
	return false
}

// ValidationError lists every close-actor value that failed validation.
type ValidationError struct {
	Invalid []string
}

func (e *ValidationError) Error() string {
	quoted := make([]string, len(e.Invalid))
	for i, v := range e.Invalid {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("invalid GitHub usernames: %s", strings.Join(quoted, ", "))
}
