package future

// Result carries a value along with an error. The chain's append queue
// hands these back to waiting callers over a channel.
type Result[T any] struct {
	Value T
	Error error
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

// Get returns the value and error contained in the Result.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Error
}
