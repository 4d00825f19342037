package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandFailed is the generic failure reported for an aborted or rolled back command.
	ErrCommandFailed = errors.New("command failed")
	// ErrPoolExhausted is returned when no more template units can be allocated.
	ErrPoolExhausted = errors.New("template pool exhausted")
	// ErrInconsistentChain reports a broken template chain linkage.
	ErrInconsistentChain = errors.New("inconsistent template chain")
	// ErrNoTemplate is returned when a train's group has no template assigned.
	ErrNoTemplate = errors.New("no template assigned")
	// ErrInsufficientFunds is returned by the game state when a purchase cannot be paid.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotOwner is returned when a company acts on another company's vehicle.
	ErrNotOwner = errors.New("vehicle owned by another company")
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
