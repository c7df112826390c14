package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned by Get when a key has no value.
var ErrKeyNotFound = errors.New("store: key not found")

// ErrRetriesExhausted wraps the last write error after the full retry
// schedule has been consumed. When a caller sees this error, a fix-branch
// marker has already been recorded and operator intervention is required.
var ErrRetriesExhausted = errors.New("store: retries exhausted")

// DefaultRetrySchedule is the fixed backoff applied between durable-write
// attempts: the first attempt is immediate, then 1s, 3s, 9s.
var DefaultRetrySchedule = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	9 * time.Second,
}

// FixBranchFile is the name of the marker recorded when the retry schedule
// is exhausted. Its presence signals that automated recovery has given up
// and an operator must intervene.
const FixBranchFile = "FIX_BRANCH"

// Store is a narrow interface over the canonical shared-file datastore. The
// voting and state-machine engines only ever read, atomically replace, or
// append; the backing medium (flat files, embedded database) is an
// implementation detail.
//
// Set and Append guard against crash-mid-write, not concurrent writers;
// concurrent invocation against the same store path must be serialized by
// the caller.
type Store interface {
	// Get returns the value for a key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)
	// Set durably replaces the value for a key, retrying transient failures
	// on the store's backoff schedule.
	Set(key string, value []byte) error
	// Has reports whether a key has a value.
	Has(key string) bool
	// Keys returns all keys with the given prefix, sorted ascending.
	Keys(prefix string) ([]string, error)
	// Append durably appends one record line to an append-only stream.
	Append(key string, value []byte) error
	// Close closes the underlying medium.
	Close() error
	// StorePath returns the filesystem path backing the store.
	StorePath() string
}

// retriesExhausted builds the terminal error for a key after all attempts
// failed.
func retriesExhausted(key string, last error) error {
	return fmt.Errorf("%w: key %s: %v", ErrRetriesExhausted, key, last)
}
