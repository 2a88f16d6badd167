// Package bridge correlates asynchronous native completions with the Go
// callers waiting on them.
//
// Every async call registers a Future under a request id before the native
// export is invoked. The completion travels from the native thread through a
// Dispatcher to the Registry, which removes the entry and completes the
// Future exactly once. A Future abandoned by its caller is expired; its id is
// remembered for a while so a late completion can be told apart from a bogus
// one.
package bridge

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var (
	// ErrDuplicateID is returned when registering an id that is still pending.
	ErrDuplicateID = errors.New("request id already pending")

	// ErrCallbackTimeout rejects a Future whose caller stopped waiting.
	ErrCallbackTimeout = errors.New("timed out waiting for native callback")
)

// expiredCacheSize bounds how many abandoned ids are remembered.
const expiredCacheSize = 1024

// Completer is implemented by anything a Registry can complete.
type Completer interface {
	complete(value any, err error)
}

type entry struct {
	op string
	c  Completer
}

// Registry maps pending request ids to their completers.
type Registry struct {
	log *zap.Logger

	mu       sync.Mutex
	pending  map[int32]entry
	expired  *lru.Cache[int32, string]
	closeErr error
}

// NewRegistry returns an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	expired, _ := lru.New[int32, string](expiredCacheSize)
	return &Registry{
		log:     log,
		pending: make(map[int32]entry),
		expired: expired,
	}
}

// Register adds c under id.
func (r *Registry) Register(id int32, op string, c Completer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return r.closeErr
	}
	if _, ok := r.pending[id]; ok {
		return ErrDuplicateID
	}
	r.expired.Remove(id)
	r.pending[id] = entry{op: op, c: c}
	return nil
}

func (r *Registry) take(id int32) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return e, ok
}

// Resolve completes id with v. It reports false if id is not pending.
func (r *Registry) Resolve(id int32, v any) bool {
	e, ok := r.take(id)
	if !ok {
		return false
	}
	e.c.complete(v, nil)
	return true
}

// Reject completes id with err. It reports false if id is not pending.
func (r *Registry) Reject(id int32, err error) bool {
	e, ok := r.take(id)
	if !ok {
		return false
	}
	e.c.complete(nil, err)
	return true
}

// Expire rejects id with err and remembers it as abandoned.
func (r *Registry) Expire(id int32, err error) bool {
	e, ok := r.take(id)
	if !ok {
		return false
	}
	r.expired.Add(id, e.op)
	r.log.Debug("request abandoned", zap.Int32("request_id", id), zap.String("op", e.op))
	e.c.complete(nil, err)
	return true
}

// Late reports whether id was abandoned by its caller, and for which
// operation.
func (r *Registry) Late(id int32) (string, bool) {
	return r.expired.Peek(id)
}

// Pending returns the number of entries awaiting completion.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// RejectAll rejects every pending entry with err. Later registrations fail
// with err.
func (r *Registry) RejectAll(err error) {
	r.mu.Lock()
	r.closeErr = err
	pending := r.pending
	r.pending = make(map[int32]entry)
	r.mu.Unlock()

	for _, e := range pending {
		e.c.complete(nil, err)
	}
}
