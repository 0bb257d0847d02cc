package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent document, escalation or rule.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state-machine guard violation, e.g. a double
	// escalate or resolving a closed escalation.
	ErrConflict = errors.New("conflict")
	// ErrUnknownField marks a correction referencing a field that is not
	// part of the document's extraction result.
	ErrUnknownField = errors.New("unknown field")
	// ErrInsufficientData marks an accuracy computation below the minimum
	// sample size. It is a skip signal, not a failure.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrCooldownActive marks a rollback suppressed by the per-rule
	// cooldown window.
	ErrCooldownActive = errors.New("rollback cooldown active")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTemporary      = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
