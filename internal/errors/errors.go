package errors

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Callers match with errors.Is; Map turns them into
// gRPC statuses at the transport edge.
var (
	ErrNotFound           = errors.New("not found")
	ErrNotMember          = errors.New("user is not a member of this chat")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidTarget      = errors.New("cannot message a deleted user")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrInvalidMood        = errors.New("invalid mood")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// Aborted wraps a persistence failure that rolled back a multi-step mutation.
// Taxonomy errors pass through unchanged so callers still see the cause.
func Aborted(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrNotMember, ErrPermissionDenied, ErrInvalidTarget, ErrTransactionAborted, ErrInvalidMood, ErrInvalidArgument} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTransactionAborted, err)
}

// NotFound annotates ErrNotFound with what was missing.
func NotFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
}
