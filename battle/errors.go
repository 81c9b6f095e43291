/*
errors.go - Centralized error types for the clan battle engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every specific error wraps exactly one class sentinel so callers can
  branch on the class with errors.Is and still report the detail.

ERROR CLASSES:
  1. ErrNotFound         - Clan, member, record or entry absent
  2. ErrAlreadyExists    - Duplicate subscription, boss already locked
  3. ErrPermissionDenied - Non-owner, non-admin on a restricted operation
  4. ErrInvalidArgument  - Malformed round/boss/damage/server, tier miss
  5. ErrStorage          - Underlying store fault

USAGE:
  if errors.Is(err, battle.ErrAlreadyExists) {
      var locked *battle.AlreadyLockedError
      if errors.As(err, &locked) { ... locked.Holder ... }
  }

SEE ALSO:
  - store.go: StorageError is returned by store implementations
  - api/handlers.go: Maps classes onto HTTP status codes
*/
package battle

import (
	"errors"
	"fmt"
)

// =============================================================================
// CLASS SENTINELS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStorage          = errors.New("storage failure")
)

// =============================================================================
// SPECIFIC ERRORS - Each wraps its class
// =============================================================================

var (
	ErrClanNotFound   = fmt.Errorf("clan %w", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("member %w", ErrNotFound)
	ErrRecordNotFound = fmt.Errorf("run record %w", ErrNotFound)
	ErrEntryNotFound  = fmt.Errorf("subscription %w", ErrNotFound)
	ErrNotLocked      = fmt.Errorf("boss lock %w", ErrNotFound)

	ErrAlreadyLocked      = fmt.Errorf("boss lock %w", ErrAlreadyExists)
	ErrDuplicateSubscribe = fmt.Errorf("subscription %w", ErrAlreadyExists)
	ErrAlreadyOnTree      = fmt.Errorf("on-tree entry %w", ErrAlreadyExists)
	ErrClanExists         = fmt.Errorf("clan %w", ErrAlreadyExists)
	ErrMemberExists       = fmt.Errorf("member %w", ErrAlreadyExists)

	ErrInvalidServer     = fmt.Errorf("%w: unknown server code", ErrInvalidArgument)
	ErrInvalidRound      = fmt.Errorf("%w: invalid round", ErrInvalidArgument)
	ErrInvalidBossCode   = fmt.Errorf("%w: invalid boss code", ErrInvalidArgument)
	ErrInvalidTier       = fmt.Errorf("%w: no tier covers round", ErrInvalidArgument)
	ErrInvalidDamage     = fmt.Errorf("%w: invalid damage", ErrInvalidArgument)
	ErrLateSubscribe     = fmt.Errorf("%w: target boss already reached", ErrInvalidArgument)
	ErrMissingTailDamage = fmt.Errorf("%w: tail damage required for a past boss", ErrInvalidArgument)
	ErrSwapBackward      = fmt.Errorf("%w: subscriptions can only move forward", ErrInvalidArgument)
	ErrEntryClosed       = fmt.Errorf("%w: subscription already closed", ErrInvalidArgument)
	ErrSubscribeRequired = fmt.Errorf("%w: subscribe to the boss before locking it ahead", ErrInvalidArgument)
	ErrProgressBackward  = fmt.Errorf("%w: progress can only move forward", ErrInvalidArgument)
	ErrBatchTooLarge     = fmt.Errorf("%w: member batch too large", ErrInvalidArgument)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyLockedError names the member holding the lock on a target.
type AlreadyLockedError struct {
	Target Target
	Holder MemberKey
	Entry  EntryID
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("boss %s already locked by user %d (entry %d)", e.Target, e.Holder.UserID, e.Entry)
}

func (e *AlreadyLockedError) Unwrap() error { return ErrAlreadyLocked }

// StorageError reports a store fault together with the attempted operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// NewStorageError wraps err unless it is nil or already a StorageError.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// UsageError attaches a usage hint to an error for the presentation layer.
type UsageError struct {
	Err   error
	Usage string
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// WithUsage attaches a usage hint. Nil errors stay nil.
func WithUsage(err error, usage string) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err, Usage: usage}
}

// Usage returns the innermost usage hint attached to err, if any.
func Usage(err error) string {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Usage
	}
	return ""
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotFound)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
