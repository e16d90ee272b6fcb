// Package service provides business logic implementations.
package service

import (
	"errors"
	"fmt"
	"time"

	"maze-rewards/internal/repository"
)

// Domain errors surfaced to callers. Idempotent duplicates are not errors.
var (
	ErrNotFound          = errors.New("account not found")
	ErrConflict          = errors.New("username already taken")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoFreeUsesLeft    = errors.New("no free uses left")
	ErrCooldown          = errors.New("reward is cooling down")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrCloseInProgress   = errors.New("month close already running")
)

// errAlreadyApplied aborts a claim whose effect another once-only marker
// already recorded.
var errAlreadyApplied = errors.New("already applied")

// CooldownError carries the remaining wait of a rate-limited reward.
// errors.Is(err, ErrCooldown) matches it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrCooldown, e.Remaining.Round(time.Second))
}

// Is makes CooldownError match ErrCooldown.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// mapRepoErr translates repository sentinels into the domain taxonomy.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrUsernameTaken):
		return ErrConflict
	}
	return err
}
