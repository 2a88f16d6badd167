package native

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSequenceWrapsPastZero(t *testing.T) {
	var s Sequence
	s.v.Store(math.MaxInt32 - 1)

	assert.Equal(t, int32(math.MaxInt32), s.Next())
	assert.Equal(t, int32(1), s.Next())
	assert.Equal(t, int32(2), s.Next())
}

func TestNullCompletionIsReported(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := &DynLibrary{routes: make(map[int32]func(*Block))}
	l.SetLogger(zap.New(core))

	called := false
	l.routes[7] = func(*Block) { called = true }
	l.complete("query_async", AsyncFuncs["query_async"], 0)

	assert.False(t, called)
	assert.Equal(t, int64(1), l.NullCompletions())
	entries := logs.FilterMessage("native completion without response block").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "query_async", entries[0].ContextMap()["fn"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["pending"])
}
