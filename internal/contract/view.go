package contract

import (
	"context"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// ReadView is the read-only window onto storage given to a procedure.
// It has no write method.
type ReadView struct {
	storage Storage
}

// NewReadView wraps storage for reading.
func NewReadView(storage Storage) ReadView {
	return ReadView{storage: storage}
}

// Get loads the value under key. A missing key is a NOT_FOUND error.
func (v ReadView) Get(ctx context.Context, key string) (ir.IRValue, error) {
	if v.storage == nil {
		return nil, fault.New(fault.KindInvalidArgument, "contract.ReadView", "no storage capability")
	}
	return v.storage.LoadData(ctx, key)
}

// GetOr loads the value under key, or returns def if the key is absent.
func (v ReadView) GetOr(ctx context.Context, key string, def ir.IRValue) (ir.IRValue, error) {
	val, err := v.Get(ctx, key)
	if fault.IsNotFound(err) {
		return def, nil
	}
	return val, err
}

// GetObject loads an object under key. An absent key yields an empty
// object; a value of another type is an INTEGRITY_VIOLATION.
func (v ReadView) GetObject(ctx context.Context, key string) (ir.IRObject, error) {
	val, err := v.GetOr(ctx, key, ir.IRObject{})
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.IRObject)
	if !ok {
		return nil, fault.New(fault.KindIntegrity, "contract.ReadView", "record "+key+" is not an object")
	}
	return obj, nil
}

// Has reports whether key is present.
func (v ReadView) Has(ctx context.Context, key string) (bool, error) {
	_, err := v.Get(ctx, key)
	if fault.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
