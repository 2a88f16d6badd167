package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Future is the pending result of an asynchronous native call.
type Future[T any] struct {
	id       int32
	reg      *Registry
	deadline time.Time

	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewFuture returns a Future for id. A positive timeout bounds how long
// Await waits, counted from now.
func NewFuture[T any](reg *Registry, id int32, timeout time.Duration) *Future[T] {
	f := &Future[T]{id: id, reg: reg, done: make(chan struct{})}
	if timeout > 0 {
		f.deadline = time.Now().Add(timeout)
	}
	return f
}

// Failed returns a Future already completed with err.
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.complete(nil, err)
	return f
}

func (f *Future[T]) complete(v any, err error) {
	f.once.Do(func() {
		if err == nil {
			if typed, ok := v.(T); ok {
				f.val = typed
			} else if v != nil {
				err = fmt.Errorf("unexpected completion type %T", v)
			}
		}
		f.err = err
		close(f.done)
	})
}

// ID is the request id the Future was registered under.
func (f *Future[T]) ID() int32 { return f.id }

// Done is closed once the Future has a result.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is available, ctx is done or the timeout
// elapses. In the last two cases the Future is rejected with
// ErrCallbackTimeout and a later native completion is discarded.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	var timeout <-chan time.Time
	if !f.deadline.IsZero() {
		t := time.NewTimer(time.Until(f.deadline))
		defer t.Stop()
		timeout = t.C
	}

	var cause error
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		cause = ctx.Err()
	case <-timeout:
		cause = context.DeadlineExceeded
	}

	if f.reg != nil {
		f.reg.Expire(f.id, fmt.Errorf("%w: %w", ErrCallbackTimeout, cause))
	}
	// Either Expire rejected the Future or a completion won the race.
	<-f.done
	return f.val, f.err
}
