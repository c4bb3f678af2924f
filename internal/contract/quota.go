package contract

import (
	"errors"
	"fmt"
)

// DefaultMaxWrites is the default maximum number of writes per execution.
// This stops a runaway procedure from flooding the chain.
const DefaultMaxWrites = 1000

// writeQuota counts the writes of one execution through its capabilities.
// Only the runtime worker touches it.
type writeQuota struct {
	limit   int
	current int
}

func newWriteQuota(limit int) *writeQuota {
	return &writeQuota{limit: limit}
}

// Check counts one write and fails once the limit is exceeded.
func (q *writeQuota) Check(executionID string) error {
	q.current++
	if q.limit > 0 && q.current > q.limit {
		return &WritesExceededError{ExecutionID: executionID, Writes: q.current, Limit: q.limit}
	}
	return nil
}

// WritesExceededError is returned to a procedure whose execution exceeded
// the write quota. The write is not performed.
type WritesExceededError struct {
	ExecutionID string
	Writes      int
	Limit       int
}

func (e *WritesExceededError) Error() string {
	return fmt.Sprintf("execution %s exceeded write quota: %d writes > %d limit",
		e.ExecutionID, e.Writes, e.Limit)
}

// IsWritesExceededError reports whether err is a WritesExceededError.
func IsWritesExceededError(err error) bool {
	var we *WritesExceededError
	return errors.As(err, &we)
}
