package nativetest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openiap/openiap-go/internal/native"
	"github.com/openiap/openiap-go/internal/native/nativetest"
)

func connect(t *testing.T, core *nativetest.Core) uintptr {
	t.Helper()
	client, err := core.Call("create_client")
	require.NoError(t, err)

	var a native.Arena
	defer a.Release()
	resp, err := core.Call("client_connect", client, native.Addr(a.CString("grpc://localhost:50051")))
	require.NoError(t, err)
	require.True(t, native.View[native.StatusResponse](native.NewBlock(resp, nil)).Success)
	core.Free("free_connect_response", resp)
	return client
}

func TestCoreAccounting(t *testing.T) {
	t.Run("BalancedFrees", func(t *testing.T) {
		core := nativetest.New()
		client := connect(t, core)
		assert.Equal(t, 1, core.Live())

		core.Call("client_disconnect", client)
		core.Free("free_client", client)
		assert.Zero(t, core.Live())
		assert.Empty(t, core.DoubleFrees())
		assert.Empty(t, core.WrongFrees())
	})

	t.Run("DoubleFree", func(t *testing.T) {
		core := nativetest.New()
		client := connect(t, core)
		core.Free("free_client", client)
		core.Free("free_client", client)
		assert.Equal(t, []string{"free_client"}, core.DoubleFrees())
	})

	t.Run("WrongFree", func(t *testing.T) {
		core := nativetest.New()
		client := connect(t, core)
		core.Free("free_query_response", client)
		assert.Equal(t, []string{"free_client/free_query_response"}, core.WrongFrees())
	})

	t.Run("UnknownExport", func(t *testing.T) {
		core := nativetest.New()
		_, err := core.Call("invoke_openrpa")
		assert.ErrorIs(t, err, native.ErrSymbolNotFound)
		err = core.CallAsync("query", 1, func(*native.Block) {})
		assert.ErrorIs(t, err, native.ErrUnknownFunction)
	})
}

func TestCoreAsync(t *testing.T) {
	core := nativetest.New()
	client := connect(t, core)

	query := func(id int32, done func(*native.Block)) {
		var a native.Arena
		defer a.Release()
		req := native.Pin(&a, &native.QueryRequest{
			CollectionName: a.CString("entities"),
			Query:          a.CString("{}"),
			RequestID:      id,
		})
		require.NoError(t, core.CallAsync("query_async", id, done, client, native.Addr(req)))
	}

	t.Run("RoutesByRequestID", func(t *testing.T) {
		got := make(chan int32, 1)
		id := core.NextRequestID()
		query(id, func(b *native.Block) {
			defer b.Release()
			got <- native.View[native.ResultResponse](b).RequestID
		})
		select {
		case v := <-got:
			assert.Equal(t, id, v)
		case <-time.After(time.Second):
			t.Fatal("callback not delivered")
		}
	})

	t.Run("HoldAndFlush", func(t *testing.T) {
		core.Hold("query_async")
		got := make(chan struct{}, 1)
		query(core.NextRequestID(), func(b *native.Block) {
			b.Release()
			got <- struct{}{}
		})
		select {
		case <-got:
			t.Fatal("held callback delivered")
		case <-time.After(50 * time.Millisecond):
		}
		core.Flush()
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("flushed callback not delivered")
		}
	})

	t.Run("FailNextFillsGarbage", func(t *testing.T) {
		core.FailNext("query", "boom")
		got := make(chan *native.ResultResponse, 1)
		query(core.NextRequestID(), func(b *native.Block) {
			r := *native.View[native.ResultResponse](b)
			assert.Equal(t, "boom", native.GoString(r.Error))
			assert.Equal(t, "{not json", native.GoString(r.Result))
			b.Release()
			got <- &r
		})
		select {
		case r := <-got:
			assert.False(t, r.Success)
		case <-time.After(time.Second):
			t.Fatal("callback not delivered")
		}
	})

	core.Free("free_client", client)
	assert.Eventually(t, func() bool { return core.Live() == 0 }, time.Second, 10*time.Millisecond)
}
