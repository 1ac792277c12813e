// Package services implements the write/read core: sequencing, idempotent
// submission, and hybrid cache/log reads. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrConflict is returned when another claimant holds the dedup key in
	// flight, or a concurrent submission won the claim race. Callers should
	// retry shortly; the original writer will have resolved the key by then.
	ErrConflict = errors.New("submission already in flight")

	// ErrMessageNotFound indicates that a completed idempotency record
	// references a message missing from the durable log. This is an
	// internal inconsistency, not a retryable condition.
	ErrMessageNotFound = errors.New("message not found")

	// ErrStoreUnavailable is returned when the idempotency store cannot
	// accept a claim. Without a claim there is no safe degraded write path.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrCursorConflict is returned when a fetch sets both after_sequence
	// and before_sequence; the cursors are mutually exclusive.
	ErrCursorConflict = errors.New("after_sequence and before_sequence are mutually exclusive")
)
