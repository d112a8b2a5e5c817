// Package errors provides the engine's sentinel errors and wrapping helpers.
package errors

import (
	"errors"
	"fmt"
)

// Caller-input errors. Rejected before any mutation.
var (
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrParticipantExists     = errors.New("participant already exists")
	ErrInvalidTier           = errors.New("invalid tier")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrTierAlreadyOwned      = errors.New("tier already owned")
	ErrPreviousTierRequired  = errors.New("previous tier required")
	ErrEventAlreadyProcessed = errors.New("purchase event already processed")
)

// Funding errors.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Storage errors.
var (
	ErrTableNotFound = errors.New("matrix table not found")
	ErrTableExists   = errors.New("matrix table already exists")
	ErrSlotConflict  = errors.New("slot already occupied")
	ErrTableNotFull  = errors.New("matrix table not full")
)

// Fatal errors. They signal a seeding bug or a corrupted referral graph.
var (
	ErrNoEligibleTable      = errors.New("no eligible table in referral chain")
	ErrRootTableMissing     = errors.New("root participant is missing a tier table")
	ErrMaxRecursionExceeded = errors.New("max placement depth exceeded")
)

// IsFatal reports whether err must abort processing instead of being retried or returned to a caller.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoEligibleTable) ||
		errors.Is(err, ErrRootTableMissing) ||
		errors.Is(err, ErrMaxRecursionExceeded)
}

// Is mirrors errors.Is so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
