// Package nativetest provides an in-process stand-in for the OpenIAP core.
//
// Core implements native.Library over the same struct layouts as the shared
// library, keeps collections, queues, watches and work items in memory, and
// accounts for every block it hands out so tests can assert that each one is
// freed exactly once with the right export.
package nativetest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/openiap/openiap-go/internal/native"
)

type allocation struct {
	free string
	ptr  unsafe.Pointer
	keep []any
}

// str returns a NUL-terminated copy of s owned by the allocation.
func (a *allocation) str(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	a.keep = append(a.keep, b)
	return &b[0]
}

func (a *allocation) optStr(s string) *byte {
	if s == "" {
		return nil
	}
	return a.str(s)
}

func (a *allocation) strs(ss []string) **byte {
	arr := make([]*byte, len(ss)+1)
	for i, s := range ss {
		arr[i] = a.str(s)
	}
	a.keep = append(a.keep, arr)
	return &arr[0]
}

type clientState struct {
	wrapper   *native.ClientWrapper
	url       string
	connected bool
	agent     string
	version   string
	timeout   int32
	user      *userRecord
}

type userRecord struct {
	id       string
	name     string
	username string
	email    string
	password string
	roles    []string
}

// Core is a fake OpenIAP core. The zero value is not usable; call New.
type Core struct {
	mu  sync.Mutex
	seq native.Sequence

	live        map[uintptr]*allocation
	freed       map[uintptr]*allocation
	doubleFrees []string
	wrongFrees  []string
	calls       map[string]int

	clients map[uintptr]*clientState
	users   map[string]*userRecord

	store
	telemetry

	failures map[string]string
	broken   map[string]bool
	hold     map[string]bool
	held     []func()
	delay    time.Duration
	routes   map[int32]func(*native.Block)

	tracing []string
	rpc     map[string]func(string) (string, error)
	command map[string]func(id, name, data string) (string, error)
}

// New returns an empty core.
func New() *Core {
	c := &Core{
		live:     make(map[uintptr]*allocation),
		freed:    make(map[uintptr]*allocation),
		calls:    make(map[string]int),
		clients:  make(map[uintptr]*clientState),
		users:    make(map[string]*userRecord),
		failures: make(map[string]string),
		broken:   make(map[string]bool),
		hold:     make(map[string]bool),
		routes:   make(map[int32]func(*native.Block)),
		rpc:      make(map[string]func(string) (string, error)),
		command:  make(map[string]func(id, name, data string) (string, error)),
	}
	c.store.init()
	c.telemetry.init()
	return c
}

// AddUser registers credentials accepted by signin.
func (c *Core) AddUser(username, password string, roles ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[username] = &userRecord{
		id:       newID(),
		name:     username,
		username: username,
		email:    username + "@example.com",
		password: password,
		roles:    roles,
	}
}

// FailNext makes the next call of fn (sync or async) report success=false
// with message. The payload field of that response is filled with garbage.
func (c *Core) FailNext(fn, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn = strings.TrimSuffix(fn, "_async")
	if fn == "connect" {
		fn = "client_connect"
	}
	c.failures[fn] = message
}

// Hold queues completions of the async export fn instead of delivering them
// until Flush is called.
func (c *Core) Hold(fn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold[fn] = true
}

// Flush delivers every held completion and stops holding.
func (c *Core) Flush() {
	c.mu.Lock()
	held := c.held
	c.held = nil
	c.hold = make(map[string]bool)
	c.mu.Unlock()
	for _, deliver := range held {
		deliver()
	}
}

// SetCallbackDelay delays every async completion by d.
func (c *Core) SetCallbackDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// HandleRPC installs the responder used by rpc for queue.
func (c *Core) HandleRPC(queue string, fn func(data string) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rpc[queue] = fn
}

// HandleCommand installs the responder used by custom_command for command.
// Commands without a responder echo their data.
func (c *Core) HandleCommand(command string, fn func(id, name, data string) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.command[command] = fn
}

// Live returns the number of blocks handed out and not yet freed.
func (c *Core) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// LiveKinds lists the free exports still owed, sorted.
func (c *Core) LiveKinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.live))
	for _, a := range c.live {
		out = append(out, a.free)
	}
	sort.Strings(out)
	return out
}

// DoubleFrees lists free exports invoked on a block already freed or never
// handed out.
func (c *Core) DoubleFrees() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.doubleFrees...)
}

// WrongFrees lists "expected/got" pairs for blocks freed with the wrong
// export.
func (c *Core) WrongFrees() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.wrongFrees...)
}

// Calls returns how many times fn was invoked.
func (c *Core) Calls(fn string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[fn]
}

// Tracing returns the enable_tracing/disable_tracing calls seen, in order.
func (c *Core) Tracing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tracing...)
}

// track registers a block built from a. Callers hold c.mu.
func (c *Core) track(a *allocation, ptr unsafe.Pointer) uintptr {
	a.ptr = ptr
	addr := uintptr(ptr)
	c.live[addr] = a
	return addr
}

// Free implements native.Library.
func (c *Core) Free(fn string, ptr uintptr) {
	if ptr == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[fn]++
	a, ok := c.live[ptr]
	if !ok {
		c.doubleFrees = append(c.doubleFrees, fn)
		return
	}
	if a.free != fn {
		c.wrongFrees = append(c.wrongFrees, a.free+"/"+fn)
	}
	delete(c.live, ptr)
	c.freed[ptr] = a
	if fn == "free_client" {
		delete(c.clients, ptr)
	}
}

// NextRequestID implements native.Library.
func (c *Core) NextRequestID() int32 { return c.seq.Next() }

// Close implements native.Library.
func (c *Core) Close() error { return nil }

// Break makes every later sync call of fn fail at the binding level, as if
// the export had been unloaded.
func (c *Core) Break(fn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken[fn] = true
}

// Call implements native.Library.
func (c *Core) Call(fn string, args ...uintptr) (uintptr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[fn]++
	if c.broken[fn] {
		return 0, fmt.Errorf("%w: %s", native.ErrSymbolNotFound, fn)
	}
	h, ok := handlers[fn]
	if !ok {
		return 0, fmt.Errorf("%w: %s", native.ErrSymbolNotFound, fn)
	}
	return h(c, args, -1), nil
}

// asyncWithIDArg lists async exports taking request_id as an argument
// immediately before the callback instead of inside a request struct.
var asyncWithIDArg = map[string]bool{
	"connect_async":          true,
	"list_collections_async": true,
	"drop_collection_async":  true,
	"get_indexes_async":      true,
	"drop_index_async":       true,
	"unwatch_async":          true,
}

// CallAsync implements native.Library. Arguments are consumed before it
// returns; the completion is delivered on a separate goroutine.
func (c *Core) CallAsync(fn string, requestID int32, done func(*native.Block), args ...uintptr) error {
	af, ok := native.AsyncFuncs[fn]
	if !ok {
		return fmt.Errorf("%w: %s", native.ErrUnknownFunction, fn)
	}
	syncFn := strings.TrimSuffix(fn, "_async")
	if fn == "connect_async" {
		syncFn = "client_connect"
	}
	h, ok := handlers[syncFn]
	if !ok {
		return fmt.Errorf("%w: %s", native.ErrSymbolNotFound, fn)
	}

	c.mu.Lock()
	c.calls[fn]++
	idArg := int32(-1)
	if asyncWithIDArg[fn] {
		idArg = int32(args[len(args)-1])
		args = args[:len(args)-1]
	}
	resp := h(c, args, idArg)
	c.routes[requestID] = done
	delay := c.delay
	deliver := func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		c.complete(af, resp)
	}
	if c.hold[fn] {
		c.held = append(c.held, deliver)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	go deliver()
	return nil
}

// complete routes a response block by the request id it carries, the way the
// loaded library does.
func (c *Core) complete(af native.AsyncFunc, resp uintptr) {
	block := native.NewBlock(resp, native.FreeFunc(c, af.Free))
	id := native.RequestIDAt(af, resp)
	c.mu.Lock()
	done, ok := c.routes[id]
	delete(c.routes, id)
	c.mu.Unlock()
	if !ok {
		block.Release()
		return
	}
	done(block)
}

// failure pops the injected failure for fn. Callers hold c.mu.
func (c *Core) failure(fn string) (string, bool) {
	msg, ok := c.failures[fn]
	if ok {
		delete(c.failures, fn)
	}
	return msg, ok
}

func (c *Core) client(addr uintptr) (*clientState, error) {
	st, ok := c.clients[addr]
	if !ok {
		return nil, fmt.Errorf("invalid client")
	}
	if !st.connected {
		return nil, fmt.Errorf("client is not connected")
	}
	return st, nil
}

func ptrOf[T any](addr uintptr) *T {
	return (*T)(unsafe.Pointer(addr))
}

func boolArg(v uintptr) bool { return v&0xff != 0 }
