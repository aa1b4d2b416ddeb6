package provider

import "fmt"

// Error is a failure reported by a provider client. Status carries the HTTP
// status code when the failure came from an HTTP response, 0 otherwise.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider: %d %s", e.Status, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("provider: %s: %s", e.Code, e.Message)
	}
	return "provider: " + e.Message
}

// RateLimitError builds a 429 provider error.
func RateLimitError(msg string) *Error {
	return &Error{Status: 429, Code: "rate_limit", Message: msg}
}

// OverloadedError builds an overloaded (529-style) provider error.
func OverloadedError(msg string) *Error {
	return &Error{Status: 529, Code: "overloaded", Message: msg}
}

// TimeoutError builds a timeout provider error.
func TimeoutError(msg string) *Error {
	return &Error{Code: "timeout", Message: msg}
}
