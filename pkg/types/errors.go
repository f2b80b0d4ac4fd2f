package types

import (
	"errors"
	"fmt"
)

// Error taxonomy roots. Every other error in this package wraps one of them,
// so callers can test either the specific condition or its class with
// errors.Is.
var (
	// ErrInvalidState means a change cannot be applied to or reverted from
	// the current store or state contents.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidAspect means an aspect type key is unknown, or an
	// (aspect type, id) pair is double-booked or missing in a state change.
	ErrInvalidAspect = errors.New("invalid aspect")

	// ErrInvalidEvent means an event is malformed or collides with another.
	ErrInvalidEvent = errors.New("invalid event")
)

// Store and change errors.
var (
	ErrAlreadyExists = fmt.Errorf("%w: aspect already exists", ErrInvalidState)
	ErrNotFound      = fmt.Errorf("%w: aspect not found", ErrInvalidState)
)

// State change and registry errors.
var (
	ErrUnknownAspectType = fmt.Errorf("%w: unknown aspect type", ErrInvalidAspect)
	ErrAlreadyModified   = fmt.Errorf("%w: aspect already modified by change", ErrInvalidAspect)
	ErrNotModified       = fmt.Errorf("%w: aspect not modified by change", ErrInvalidAspect)
	ErrUnknownChange     = fmt.Errorf("%w: unknown change operation", ErrInvalidAspect)
)

// Timeline errors.
var (
	ErrDuplicateTimestamp = fmt.Errorf("%w: duplicate timestamp", ErrInvalidEvent)
	ErrEventNotFound      = fmt.Errorf("%w: event not found", ErrInvalidEvent)
)

// Journal lifecycle errors.
var (
	ErrJournalDetached = errors.New("journal is detached")
	ErrAlreadyAttached = errors.New("journal is already attached")
)
