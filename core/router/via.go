package router

import "context"

// Via is the pending result of a submitted unit of work. It resolves at most
// once, when the worker has run the unit of work. If the work is never run
// the Via stays pending forever.
type Via[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newVia[T any]() *Via[T] {
	return &Via[T]{done: make(chan struct{})}
}

// deliver must be called at most once.
func (v *Via[T]) deliver(val T, err error) {
	v.val, v.err = val, err
	close(v.done)
}

// Done is closed once the result is available.
func (v *Via[T]) Done() <-chan struct{} { return v.done }

// Await blocks until the result is available or ctx ends. In the latter case
// it returns ctx.Err(); the unit of work is not cancelled and may still run.
func (v *Via[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-v.done:
		return v.val, v.err
	default:
	}
	select {
	case <-v.done:
		return v.val, v.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the delivered result without blocking; ok is false while
// the Via is still pending.
func (v *Via[T]) Result() (val T, ok bool, err error) {
	select {
	case <-v.done:
		return v.val, true, v.err
	default:
		return val, false, nil
	}
}
