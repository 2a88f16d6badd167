package openiap

import (
	"go.uber.org/zap"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/native"
)

// call describes one request/response operation of the core. The same
// description drives the blocking export and its _async variant.
type call[T any] struct {
	op    string // operation name used in errors and logs
	fn    string // synchronous export
	async string // asynchronous export; empty for sync-only operations
	free  string // free export of the response block

	// idArg marks exports that take the request id as a trailing argument
	// instead of inside a request struct.
	idArg bool

	// detached marks exports that do not take the client pointer.
	detached bool

	// encode returns every argument after the client pointer. id is zero
	// for the synchronous export.
	encode func(a *native.Arena, id int32) []uintptr
	decode func(b *native.Block) (T, error)

	// cleanup runs once the core no longer needs the request's inputs.
	cleanup func()
}

func (c call[T]) done() {
	if c.cleanup != nil {
		c.cleanup()
	}
}

// run invokes the blocking export.
func (c call[T]) run(cl *Client) (T, error) {
	defer c.done()
	var zero T

	ptr, release, err := cl.h.Acquire()
	if err != nil {
		return zero, err
	}
	defer release()

	var a native.Arena
	defer a.Release()
	args := c.encode(&a, 0)
	if !c.detached {
		args = append([]uintptr{ptr}, args...)
	}
	raw, err := cl.lib.Call(c.fn, args...)
	if err != nil {
		return zero, nativeFailure(c.op, err)
	}
	block := cl.h.Block(raw, c.free)
	defer block.Release()
	if block.IsNil() {
		return zero, noResponse(c.op)
	}
	return c.decode(block)
}

// exec runs the blocking export for its error only. It has the shape of an
// unregister func.
func (c call[T]) exec(cl *Client) func() error {
	return func() error {
		_, err := c.run(cl)
		return err
	}
}

// start invokes the asynchronous export. The returned Future is registered
// before the core sees the request.
func (c call[T]) start(cl *Client) *Future[T] {
	id := cl.lib.NextRequestID()
	f := bridge.NewFuture[T](cl.reg, id, cl.cfg.CallbackTimeout)
	if err := cl.reg.Register(id, c.op, f); err != nil {
		c.done()
		return bridge.Failed[T](err)
	}

	ptr, release, err := cl.h.Acquire()
	if err != nil {
		c.done()
		cl.reg.Reject(id, err)
		return f
	}
	defer release()

	var a native.Arena
	defer a.Release()
	args := append([]uintptr{ptr}, c.encode(&a, id)...)
	if c.idArg {
		args = append(args, uintptr(id))
	}

	complete := func(b *native.Block) {
		var (
			v   T
			err error
		)
		if b.IsNil() {
			err = noResponse(c.op)
		} else {
			v, err = c.decode(b)
		}
		b.Release()
		c.done()
		cl.disp.Enqueue(id, c.op, v, err)
	}
	if err := cl.lib.CallAsync(c.async, id, complete, args...); err != nil {
		c.done()
		cl.reg.Reject(id, nativeFailure(c.op, err))
		return f
	}
	cl.log.Debug("request started", zap.Int32("request_id", id), zap.String("op", c.op))
	return f
}
