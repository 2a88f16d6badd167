// Package handle owns the lifetime of one native client.
package handle

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openiap/openiap-go/internal/native"
)

// ErrClosed is returned by Acquire once the handle has been closed.
var ErrClosed = errors.New("client is closed")

// NativeError carries the message the core reported for a failed lifecycle
// call.
type NativeError struct {
	Op      string
	Message string
}

func (e *NativeError) Error() string {
	return e.Op + ": " + e.Message
}

// Options configure a new handle.
type Options struct {
	AgentName    string
	AgentVersion string
	Logger       *zap.Logger
}

// Manager guards a native ClientWrapper. Calls hold a read lock for their
// duration; Close takes the write lock, so it waits for in-flight calls and
// no call starts after it.
type Manager struct {
	lib native.Library
	log *zap.Logger

	mu     sync.RWMutex
	ptr    uintptr
	closed bool

	outstanding atomic.Int64
}

// New creates a native client and applies the agent identity. The client is
// not connected yet.
func New(lib native.Library, opts Options) (*Manager, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ptr, err := lib.Call("create_client")
	if err != nil {
		return nil, err
	}
	if ptr == 0 {
		return nil, &NativeError{Op: "create_client", Message: "no client returned"}
	}
	w := (*native.ClientWrapper)(native.Pointer(ptr))
	if !w.Success {
		msg := native.GoString(w.Error)
		lib.Free("free_client", ptr)
		return nil, &NativeError{Op: "create_client", Message: msg}
	}

	m := &Manager{lib: lib, log: log, ptr: ptr}
	if opts.AgentName != "" {
		m.setString("client_set_agent_name", opts.AgentName)
	}
	if opts.AgentVersion != "" {
		m.setString("client_set_agent_version", opts.AgentVersion)
	}
	return m, nil
}

// Open creates a client and connects it to url. On failure every native
// resource acquired so far is released.
func Open(lib native.Library, url string, opts Options) (*Manager, error) {
	m, err := New(lib, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(url); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) setString(fn, value string) {
	var a native.Arena
	defer a.Release()
	m.lib.Call(fn, m.ptr, native.Addr(a.CString(value)))
}

// Connect connects the client synchronously.
func (m *Manager) Connect(url string) error {
	ptr, release, err := m.Acquire()
	if err != nil {
		return err
	}
	defer release()

	var a native.Arena
	defer a.Release()
	raw, err := m.lib.Call("client_connect", ptr, native.Addr(a.CString(url)))
	if err != nil {
		return err
	}
	block := m.Block(raw, "free_connect_response")
	defer block.Release()
	resp := native.View[native.StatusResponse](block)
	if resp == nil {
		return &NativeError{Op: "client_connect", Message: "no response"}
	}
	if !resp.Success {
		return &NativeError{Op: "client_connect", Message: native.GoString(resp.Error)}
	}
	return nil
}

// Library returns the library the handle was created from.
func (m *Manager) Library() native.Library { return m.lib }

// Acquire returns the raw client pointer and a release func that must be
// called when the native call has returned.
func (m *Manager) Acquire() (uintptr, func(), error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0, nil, ErrClosed
	}
	return m.ptr, m.mu.RUnlock, nil
}

// Block wraps a response obtained through this handle so it is counted until
// released.
func (m *Manager) Block(ptr uintptr, free string) *native.Block {
	if ptr == 0 {
		return native.NewBlock(0, nil)
	}
	m.outstanding.Add(1)
	return native.NewBlock(ptr, func(p uintptr) {
		m.lib.Free(free, p)
		m.outstanding.Add(-1)
	})
}

// Outstanding is the number of blocks handed out by Block and not released.
func (m *Manager) Outstanding() int64 { return m.outstanding.Load() }

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Close disconnects and frees the native client. Only the first call has an
// effect.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.lib.Call("client_disconnect", m.ptr)
	m.lib.Free("free_client", m.ptr)
	m.ptr = 0
	if n := m.outstanding.Load(); n > 0 {
		m.log.Error("native blocks not released at close", zap.Int64("outstanding", n))
	}
	return nil
}
