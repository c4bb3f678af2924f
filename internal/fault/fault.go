// Package fault defines the error taxonomy shared by the chain, the record
// store and the contract runtime.
//
// Every infrastructure failure is a *Error carrying a Kind. Callers classify
// with the IsXxx helpers, which use errors.As so wrapping with fmt.Errorf
// and %w keeps the classification intact.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	// KindNotFound: the requested block, record or contract does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindIntegrity: a recomputed digest does not match the stored one.
	// Tamper checks report this as a boolean; the kind is used when a
	// caller asks for a block that fails its own digest.
	KindIntegrity Kind = "INTEGRITY_VIOLATION"

	// KindEncryption: sealing a payload or wrapping its key failed.
	KindEncryption Kind = "ENCRYPTION"

	// KindDecryption: key material mismatch or malformed ciphertext.
	KindDecryption Kind = "DECRYPTION"

	// KindConcurrency is reserved for key-level locking. Under global
	// execution serialization it is never produced.
	KindConcurrency Kind = "CONCURRENCY_CONFLICT"

	// KindProcedure: a contract's business logic failed.
	KindProcedure Kind = "PROCEDURE"

	// KindInvalidArgument: malformed input rejected before any effect.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"

	// KindClosed: the component has been shut down.
	KindClosed Kind = "CLOSED"
)

// Error is a classified error.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed, e.g. "chain.ReadBlock".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound creates a KindNotFound error for what.
func NotFound(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found"}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsIntegrity reports whether err is a KindIntegrity error.
func IsIntegrity(err error) bool { return Is(err, KindIntegrity) }

// IsEncryption reports whether err is a KindEncryption error.
func IsEncryption(err error) bool { return Is(err, KindEncryption) }

// IsDecryption reports whether err is a KindDecryption error.
func IsDecryption(err error) bool { return Is(err, KindDecryption) }

// IsProcedure reports whether err is a KindProcedure error.
func IsProcedure(err error) bool { return Is(err, KindProcedure) }

// IsInvalidArgument reports whether err is a KindInvalidArgument error.
func IsInvalidArgument(err error) bool { return Is(err, KindInvalidArgument) }

// IsClosed reports whether err is a KindClosed error.
func IsClosed(err error) bool { return Is(err, KindClosed) }
