package publish

import (
	"context"
	"errors"
	"strings"
)

// Class is the retry disposition of a publish failure.
type Class int

const (
	// ClassRetryable covers faults that may clear on their own:
	// outputs the indexer has not seen yet, timeouts, connection
	// trouble, rate limiting.
	ClassRetryable Class = iota

	// ClassConflict covers double-spend family failures. Never
	// retried: the spent output stays spent no matter how many times
	// the transaction is resubmitted.
	ClassConflict

	// ClassFatal covers everything else.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassConflict:
		return "conflict"
	default:
		return "fatal"
	}
}

// Substrings identifying conflict errors. Checked before the
// retryable set: a "double-spend ... please retry" message from a
// creative indexer must still be fatal.
var conflictIndicators = []string{
	"double-spend",
	"double spend",
	"already spent",
	"already-spent",
	"txn-mempool-conflict",
	"missing inputs",
}

// Substrings identifying transient faults.
var retryableIndicators = []string{
	"not found",
	"not yet",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporarily unavailable",
	"service unavailable",
	"rate limit",
	"too many requests",
	"429",
	"502",
	"503",
	"no spendable output",
}

// Classify maps a publish failure to its retry disposition.
func Classify(err error) Class {
	if err == nil {
		return ClassRetryable
	}

	// Context cancellation is the caller tearing the run down, not a
	// transient fault worth retrying against.
	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}

	msg := strings.ToLower(err.Error())
	for _, ind := range conflictIndicators {
		if strings.Contains(msg, ind) {
			return ClassConflict
		}
	}
	for _, ind := range retryableIndicators {
		if strings.Contains(msg, ind) {
			return ClassRetryable
		}
	}
	return ClassFatal
}
