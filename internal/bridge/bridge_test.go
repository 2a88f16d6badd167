package bridge_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/openiap/openiap-go/internal/bridge"
)

func TestRegistry(t *testing.T) {
	t.Run("ResolveOnce", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		f := bridge.NewFuture[string](reg, 1, 0)
		require.NoError(t, reg.Register(1, "query", f))
		assert.Equal(t, 1, reg.Pending())

		assert.True(t, reg.Resolve(1, "ok"))
		assert.False(t, reg.Resolve(1, "again"))
		assert.False(t, reg.Reject(1, errors.New("late")))
		assert.Zero(t, reg.Pending())

		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		require.NoError(t, reg.Register(7, "count", bridge.NewFuture[int](reg, 7, 0)))
		err := reg.Register(7, "count", bridge.NewFuture[int](reg, 7, 0))
		assert.ErrorIs(t, err, bridge.ErrDuplicateID)
	})

	t.Run("AbsentID", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		assert.False(t, reg.Resolve(99, nil))
		assert.False(t, reg.Reject(99, errors.New("x")))
		_, late := reg.Late(99)
		assert.False(t, late)
	})

	t.Run("RejectAll", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		closed := errors.New("closed")
		a := bridge.NewFuture[string](reg, 1, 0)
		b := bridge.NewFuture[string](reg, 2, 0)
		require.NoError(t, reg.Register(1, "query", a))
		require.NoError(t, reg.Register(2, "query", b))

		reg.RejectAll(closed)
		for _, f := range []*bridge.Future[string]{a, b} {
			_, err := f.Await(context.Background())
			assert.ErrorIs(t, err, closed)
		}
		assert.ErrorIs(t, reg.Register(3, "query", bridge.NewFuture[string](reg, 3, 0)), closed)
	})

	t.Run("ExactlyOnceUnderContention", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		f := bridge.NewFuture[int](reg, 5, 0)
		require.NoError(t, reg.Register(5, "count", f))

		var wins atomic.Int32
		var g errgroup.Group
		for i := 0; i < 32; i++ {
			i := i
			g.Go(func() error {
				var ok bool
				if i%2 == 0 {
					ok = reg.Resolve(5, i)
				} else {
					ok = reg.Reject(5, errors.New("rejected"))
				}
				if ok {
					wins.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), wins.Load())
		<-f.Done()
	})
}

func TestFuture(t *testing.T) {
	t.Run("ContextExpiry", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		f := bridge.NewFuture[string](reg, 3, 0)
		require.NoError(t, reg.Register(3, "query", f))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := f.Await(ctx)
		assert.ErrorIs(t, err, bridge.ErrCallbackTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, reg.Pending())

		op, late := reg.Late(3)
		assert.True(t, late)
		assert.Equal(t, "query", op)
		assert.False(t, reg.Resolve(3, "too late"))
	})

	t.Run("ConfiguredTimeout", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		f := bridge.NewFuture[string](reg, 4, 10*time.Millisecond)
		require.NoError(t, reg.Register(4, "query", f))

		start := time.Now()
		_, err := f.Await(context.Background())
		assert.ErrorIs(t, err, bridge.ErrCallbackTimeout)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("AwaitTwice", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		f := bridge.NewFuture[int](reg, 8, 0)
		require.NoError(t, reg.Register(8, "count", f))
		reg.Resolve(8, 42)

		for i := 0; i < 2; i++ {
			v, err := f.Await(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 42, v)
		}
	})

	t.Run("TypedNil", func(t *testing.T) {
		type item struct{ ID string }
		reg := bridge.NewRegistry(nil)
		f := bridge.NewFuture[*item](reg, 9, 0)
		require.NoError(t, reg.Register(9, "pop", f))
		reg.Resolve(9, (*item)(nil))

		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("Failed", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := bridge.Failed[string](boom).Await(context.Background())
		assert.ErrorIs(t, err, boom)
	})
}

func TestDispatcher(t *testing.T) {
	t.Run("ResolvesConcurrentCompletions", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		d := bridge.NewDispatcher(reg, nil)
		defer d.Close()

		futures := make([]*bridge.Future[int], 15)
		for i := range futures {
			id := int32(i + 1)
			futures[i] = bridge.NewFuture[int](reg, id, time.Second)
			require.NoError(t, reg.Register(id, "count", futures[i]))
		}

		var wg sync.WaitGroup
		for i := range futures {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				d.Enqueue(int32(i+1), "count", i, nil)
			}(i)
		}
		wg.Wait()

		for i, f := range futures {
			v, err := f.Await(context.Background())
			require.NoError(t, err)
			assert.Equal(t, i, v)
		}
	})

	t.Run("LateAndUnknownAreLogged", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		log := zap.New(core)
		reg := bridge.NewRegistry(log)
		d := bridge.NewDispatcher(reg, log)

		f := bridge.NewFuture[string](reg, 1, time.Millisecond)
		require.NoError(t, reg.Register(1, "query", f))
		_, err := f.Await(context.Background())
		require.ErrorIs(t, err, bridge.ErrCallbackTimeout)

		d.Enqueue(1, "query", "late", nil)
		d.Enqueue(77, "query", "bogus", nil)
		d.Close()

		require.Equal(t, 2, logs.Len())
		assert.Equal(t, "late native callback discarded", logs.All()[0].Message)
		assert.Equal(t, "native callback for unknown request", logs.All()[1].Message)
	})

	t.Run("CloseDrainsThenDrops", func(t *testing.T) {
		reg := bridge.NewRegistry(nil)
		d := bridge.NewDispatcher(reg, nil)
		f := bridge.NewFuture[string](reg, 1, 0)
		require.NoError(t, reg.Register(1, "query", f))

		d.Enqueue(1, "query", "v", nil)
		d.Close()
		d.Close()
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v", v)

		g := bridge.NewFuture[string](reg, 2, 0)
		require.NoError(t, reg.Register(2, "query", g))
		d.Enqueue(2, "query", "dropped", nil)
		assert.Equal(t, 1, reg.Pending())
	})
}
