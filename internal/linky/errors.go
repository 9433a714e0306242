package linky

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx response from the provider API
type APIError struct {
	StatusCode  int
	Endpoint    string
	Code        string // "error" field of the response body
	Description string // "error_description" field of the response body
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("API error (%d) at %s: %s", e.StatusCode, e.Endpoint, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("API error (%d) at %s: %s", e.StatusCode, e.Endpoint, e.Code)
	}
	return fmt.Sprintf("API error (%d) at %s", e.StatusCode, e.Endpoint)
}

// AuthError represents a failed login or a rejected token
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies provider failures that signal the end of available history
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindMeterActivation
	ErrorKindHistoryDeadline
	ErrorKindNoMeasure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindMeterActivation:
		return "meter_activation"
	case ErrorKindHistoryDeadline:
		return "history_deadline"
	case ErrorKindNoMeasure:
		return "no_measure"
	default:
		return "unknown"
	}
}

var endOfHistoryDescriptions = map[string]ErrorKind{
	"The requested period cannot be anterior to the meter's last activation date": ErrorKindMeterActivation,
	"The start date must be greater than the history deadline.":                   ErrorKindHistoryDeadline,
	"no measure found for this usage point":                                       ErrorKindNoMeasure,
}

// ErrorDescription returns the provider's error_description carried by err, if any
func ErrorDescription(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Description
	}
	return ""
}

// Classify maps an error onto one of the known end-of-history kinds.
// Matching is exact on the description text.
func Classify(err error) ErrorKind {
	if kind, ok := endOfHistoryDescriptions[ErrorDescription(err)]; ok {
		return kind
	}
	return ErrorKindUnknown
}

// IsEndOfHistory reports whether err means the provider has no older data
func IsEndOfHistory(err error) bool {
	return Classify(err) != ErrorKindUnknown
}
