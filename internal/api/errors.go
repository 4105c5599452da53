package api

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is returned by SetReaction for a value that is neither
// like nor dislike. No request is made.
var ErrInvalidValue = errors.New("reaction value must be like or dislike")

// Error is a non-2xx response from the reaction API.
type Error struct {
	// Status is the HTTP status code.
	Status int

	// Message is taken from the body's "message" or "error" field, the raw
	// body, or the status text, in that order.
	Message string

	// Method and Path identify the failed request.
	Method string
	Path   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 if err is not an
// *Error. Uses errors.As to handle wrapped errors.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}
