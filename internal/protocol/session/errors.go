package session

import (
	"errors"
	"fmt"
)

var (
	ErrConnection     = errors.New("session: connection error")
	ErrAuthentication = errors.New("session: authentication failed")
	ErrCommand        = errors.New("session: command trapped")
	ErrNotReady       = errors.New("session: not authenticated")
	ErrSessionClosed  = errors.New("session: closed")
	ErrHostRequired   = errors.New("session: host required")
)

// TrapError carries the !trap attributes of a failed command.
type TrapError struct {
	Command  string
	Message  string
	Category string
}

func (e *TrapError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("session: %s trapped (category=%s): %s", e.Command, e.Category, e.Message)
	}
	return fmt.Sprintf("session: %s trapped: %s", e.Command, e.Message)
}

func (e *TrapError) Is(target error) bool {
	return target == ErrCommand
}

func connErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}
