package native_test

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openiap/openiap-go/internal/native"
)

// escape keeps test structs on the heap so their addresses stay valid as
// uintptr.
var escape []any

func onHeap[T any](v T) *T {
	p := new(T)
	*p = v
	escape = append(escape, p)
	return p
}

func TestArena(t *testing.T) {
	t.Run("CStringRoundTrip", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		p := a.CString("hello")
		require.NotNil(t, p)
		assert.Equal(t, "hello", native.GoString(p))
		assert.Equal(t, byte(0), *(*byte)(unsafe.Add(unsafe.Pointer(p), 5)))
	})

	t.Run("EmptyStringIsNotNil", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		p := a.CString("")
		require.NotNil(t, p)
		assert.Equal(t, "", native.GoString(p))
	})

	t.Run("StringArrayIsCountedAndTerminated", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		arr := a.StringArray([]string{"a", "bb", "ccc"})
		got, err := native.Strings(arr, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "bb", "ccc"}, got)
		assert.Equal(t, []string{"a", "bb", "ccc"}, native.TerminatedStrings(arr))
	})

	t.Run("EmptyStringArrayIsNil", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		assert.Nil(t, a.StringArray(nil))
		assert.Nil(t, a.StringArray([]string{}))
	})

	t.Run("PinArray", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		files := []*native.WorkitemFile{
			{Filename: a.CString("a.txt")},
			{Filename: a.CString("b.txt"), Compressed: true},
		}
		arr := native.PinArray(&a, files)
		got, err := native.Elements(arr, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b.txt", native.GoString(got[1].Filename))
		assert.True(t, got[1].Compressed)
	})
}

func TestDecodeArrays(t *testing.T) {
	t.Run("NilString", func(t *testing.T) {
		assert.Equal(t, "", native.GoString(nil))
	})

	t.Run("ZeroCount", func(t *testing.T) {
		got, err := native.Strings(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NilArrayWithCount", func(t *testing.T) {
		_, err := native.Strings(nil, 2)
		assert.ErrorIs(t, err, native.ErrMalformedArray)
	})

	t.Run("EarlyNull", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		arr := a.StringArray([]string{"only"})
		_, err := native.Strings(arr, 2)
		assert.ErrorIs(t, err, native.ErrMalformedArray)

		_, err = native.Elements[native.WorkitemFile](nil, 1)
		assert.ErrorIs(t, err, native.ErrMalformedArray)
	})

	t.Run("CountIsAuthoritative", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		arr := a.StringArray([]string{"x", "y", "z"})
		got, err := native.Strings(arr, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, got)
	})

	t.Run("LongString", func(t *testing.T) {
		var a native.Arena
		defer a.Release()

		s := strings.Repeat("ab", 4096)
		assert.Equal(t, s, native.GoString(a.CString(s)))
	})
}

func TestBlock(t *testing.T) {
	t.Run("ReleaseOnce", func(t *testing.T) {
		v := onHeap(native.StatusResponse{Success: true})
		freed := 0
		b := native.NewBlock(native.Addr(v), func(uintptr) { freed++ })

		assert.False(t, b.IsNil())
		assert.True(t, native.View[native.StatusResponse](b).Success)
		b.Release()
		b.Release()
		assert.Equal(t, 1, freed)
	})

	t.Run("NilBlock", func(t *testing.T) {
		freed := 0
		b := native.NewBlock(0, func(uintptr) { freed++ })
		assert.True(t, b.IsNil())
		assert.Nil(t, native.View[native.StatusResponse](b))
		b.Release()
		assert.Zero(t, freed)

		var none *native.Block
		assert.True(t, none.IsNil())
		none.Release()
	})
}

func TestSequence(t *testing.T) {
	var s native.Sequence
	assert.Equal(t, int32(1), s.Next())
	assert.Equal(t, int32(2), s.Next())

	for i := 0; i < 1000; i++ {
		assert.NotZero(t, s.Next())
	}
}

func TestAsyncFuncs(t *testing.T) {
	t.Run("EveryExportHasAFree", func(t *testing.T) {
		for fn, af := range native.AsyncFuncs {
			assert.True(t, strings.HasSuffix(fn, "_async"), fn)
			assert.True(t, strings.HasPrefix(af.Free, "free_"), fn)
			assert.NotZero(t, af.IDOffset, fn)
		}
	})

	t.Run("RequestIDAt", func(t *testing.T) {
		resp := onHeap(native.DistinctResponse{ResultsLen: 9, RequestID: 42})
		got := native.RequestIDAt(native.AsyncFuncs["distinct_async"], native.Addr(resp))
		assert.Equal(t, int32(42), got)

		count := onHeap(native.CountResponse{Result: 7, RequestID: 11})
		got = native.RequestIDAt(native.AsyncFuncs["count_async"], native.Addr(count))
		assert.Equal(t, int32(11), got)
	})

	t.Run("CallbackPlacement", func(t *testing.T) {
		args := native.WithCallback(native.AsyncFuncs["query_async"], 99, []uintptr{1, 2})
		assert.Equal(t, []uintptr{1, 2, 99}, args)

		args = native.WithCallback(native.AsyncFuncs["rpc_async"], 99, []uintptr{1, 2, 30})
		assert.Equal(t, []uintptr{1, 2, 99, 30}, args)
	})
}

func TestDefaultLibraryName(t *testing.T) {
	name := native.DefaultLibraryName()
	assert.Contains(t, name, "openiap")
	assert.Equal(t, "/opt/lib/custom.so", native.FindLibrary("/opt/lib/custom.so"))
}
