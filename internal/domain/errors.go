package domain

import "errors"

var (
	// ErrValidation marks requests rejected before a notification is created.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks updates lost to a concurrent state change.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyTerminal marks cancel requests against delivered, failed, or
	// cancelled notifications.
	ErrAlreadyTerminal = errors.New("notification is already terminal")
	// ErrNoProviderAvailable marks sends with no active provider for the
	// requested channel. Terminal, never retried.
	ErrNoProviderAvailable = errors.New("no provider available")
)
