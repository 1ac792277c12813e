// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file centralizes the sentinel errors shared by the
// repository functions.
package repo

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist (or,
	// for idempotency records, has already expired).
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates that a row with the same unique key already
	// exists. For idempotency records this is the losing side of a claim
	// race, not a storage failure.
	ErrDuplicate = errors.New("duplicate")
)
