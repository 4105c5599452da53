package reaction

import (
	"errors"
	"fmt"

	"github.com/roach88/rxn/internal/ir"
)

// ErrInvalidDirection is returned by Toggle for a direction other than like
// or dislike. No state changes.
var ErrInvalidDirection = errors.New("direction must be like or dislike")

// ReconcileError is a failed reconciliation. The dispatch it carries has
// already been rolled back when the error is reported.
type ReconcileError struct {
	// Dispatch is the toggle that failed to reach the server.
	Dispatch ir.Dispatch

	// Err is the underlying API or transport error.
	Err error
}

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	return fmt.Sprintf("%s %s -> %s (seq=%d): %v",
		e.Dispatch.Target, e.Dispatch.Prev, e.Dispatch.Next, e.Dispatch.Seq, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// IsRolledBack reports whether err is a failed reconciliation.
// Uses errors.As to handle wrapped errors.
func IsRolledBack(err error) bool {
	var re *ReconcileError
	return errors.As(err, &re)
}
