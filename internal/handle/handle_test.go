package handle_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openiap/openiap-go/internal/handle"
	"github.com/openiap/openiap-go/internal/native/nativetest"
)

const testURL = "grpc://localhost:50051"

func TestOpen(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		core := nativetest.New()
		m, err := handle.Open(core, testURL, handle.Options{AgentName: "go-test", AgentVersion: "1.0.0"})
		require.NoError(t, err)
		assert.False(t, m.Closed())
		assert.Equal(t, 1, core.Calls("client_set_agent_name"))
		assert.Equal(t, 1, core.Calls("client_set_agent_version"))
		assert.Equal(t, 1, core.Live())

		require.NoError(t, m.Close())
		assert.Zero(t, core.Live())
		assert.Empty(t, core.DoubleFrees())
	})

	t.Run("CreateFails", func(t *testing.T) {
		core := nativetest.New()
		core.FailNext("create_client", "out of memory")
		_, err := handle.Open(core, testURL, handle.Options{})

		var nerr *handle.NativeError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "create_client", nerr.Op)
		assert.Equal(t, "out of memory", nerr.Message)
		assert.Zero(t, core.Live())
		assert.Equal(t, 1, core.Calls("free_client"))
	})

	t.Run("ConnectFails", func(t *testing.T) {
		core := nativetest.New()
		_, err := handle.Open(core, "grpc://unreachable.invalid:50051", handle.Options{})

		var nerr *handle.NativeError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "client_connect", nerr.Op)
		assert.Contains(t, nerr.Message, "connection refused")
		assert.Zero(t, core.Live())
		assert.Equal(t, 1, core.Calls("client_disconnect"))
		assert.Equal(t, 1, core.Calls("free_client"))
		assert.Equal(t, 1, core.Calls("free_connect_response"))
	})
}

func TestClose(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		core := nativetest.New()
		m, err := handle.Open(core, testURL, handle.Options{})
		require.NoError(t, err)

		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
		assert.Equal(t, 1, core.Calls("client_disconnect"))
		assert.Equal(t, 1, core.Calls("free_client"))
		assert.Empty(t, core.DoubleFrees())
	})

	t.Run("AcquireAfterClose", func(t *testing.T) {
		core := nativetest.New()
		m, err := handle.Open(core, testURL, handle.Options{})
		require.NoError(t, err)
		require.NoError(t, m.Close())

		_, _, err = m.Acquire()
		assert.ErrorIs(t, err, handle.ErrClosed)
		assert.ErrorIs(t, m.Connect(testURL), handle.ErrClosed)
	})

	t.Run("WaitsForInFlightCalls", func(t *testing.T) {
		core := nativetest.New()
		m, err := handle.Open(core, testURL, handle.Options{})
		require.NoError(t, err)

		_, release, err := m.Acquire()
		require.NoError(t, err)

		closed := make(chan struct{})
		go func() {
			m.Close()
			close(closed)
		}()
		select {
		case <-closed:
			t.Fatal("close did not wait for the in-flight call")
		case <-time.After(30 * time.Millisecond):
		}
		release()
		<-closed
		assert.True(t, m.Closed())
	})

	t.Run("ConcurrentClose", func(t *testing.T) {
		core := nativetest.New()
		m, err := handle.Open(core, testURL, handle.Options{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Close()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, core.Calls("free_client"))
	})
}

func TestBlockAccounting(t *testing.T) {
	core := nativetest.New()
	m, err := handle.Open(core, testURL, handle.Options{})
	require.NoError(t, err)
	defer m.Close()

	ptr, release, err := m.Acquire()
	require.NoError(t, err)
	raw, err := core.Call("list_collections", ptr, 0)
	release()
	require.NoError(t, err)

	b := m.Block(raw, "free_list_collections_response")
	assert.Equal(t, int64(1), m.Outstanding())
	b.Release()
	b.Release()
	assert.Zero(t, m.Outstanding())
	assert.Equal(t, 1, core.Calls("free_list_collections_response"))

	assert.True(t, m.Block(0, "free_query_response").IsNil())
	assert.Zero(t, m.Outstanding())
}
