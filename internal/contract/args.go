package contract

import (
	"errors"
	"fmt"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// ArgExecutionID is the argument every execution must carry.
const ArgExecutionID = "execution_id"

// Reject returns a PROCEDURE error for a business-rule violation such as
// an insufficient balance or an invalid status transition.
func Reject(format string, args ...any) error {
	return fault.New(fault.KindProcedure, "", fmt.Sprintf(format, args...))
}

// RequireString returns the string argument key, or a PROCEDURE error.
func RequireString(args ir.IRObject, key string) (string, error) {
	v, ok := args.String(key)
	if !ok || v == "" {
		return "", Reject("argument %q must be a non-empty string", key)
	}
	return v, nil
}

// RequireInt returns the integer argument key, or a PROCEDURE error.
func RequireInt(args ir.IRObject, key string) (int64, error) {
	v, ok := args.Int(key)
	if !ok {
		return 0, Reject("argument %q must be an integer", key)
	}
	return v, nil
}

// RequirePositive is RequireInt for amounts that must be greater than zero.
func RequirePositive(args ir.IRObject, key string) (int64, error) {
	v, err := RequireInt(args, key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, Reject("argument %q must be positive, got %d", key, v)
	}
	return v, nil
}

// OptionalString returns the string argument key, or def if it is absent.
func OptionalString(args ir.IRObject, key, def string) (string, error) {
	if _, present := args[key]; !present {
		return def, nil
	}
	return RequireString(args, key)
}

func asFault(err error, target **fault.Error) bool {
	return errors.As(err, target)
}
