package native

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

// DefaultLibraryName returns the file name the core is published under for
// the running platform.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		switch runtime.GOARCH {
		case "386":
			return "openiap-windows-x86.dll"
		case "arm64":
			return "openiap-windows-arm64.dll"
		}
		return "openiap-windows-x64.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "libopeniap-macos-arm64.dylib"
		}
		return "libopeniap-macos-x64.dylib"
	case "freebsd":
		return "libopeniap-freebsd-x64.so"
	case "android":
		if runtime.GOARCH == "arm" {
			return "libopeniap-android-arm-eabi.so"
		}
		return "libopeniap-android-arm64.so"
	}
	if runtime.GOARCH == "arm64" {
		return "libopeniap-linux-arm64.so"
	}
	return "libopeniap-linux-x64.so"
}

// FindLibrary resolves the library to load. An explicit path wins; otherwise
// the working directory, the executable's directory and its lib/ folder are
// searched before falling back to the bare name for the system loader.
func FindLibrary(path string) string {
	if path != "" {
		return path
	}
	name := DefaultLibraryName()
	candidates := []string{name, filepath.Join("lib", name)}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates, filepath.Join(dir, name), filepath.Join(dir, "lib", name))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			if abs, err := filepath.Abs(c); err == nil {
				return abs
			}
			return c
		}
	}
	return name
}

var (
	loadedMu sync.Mutex
	loaded   = map[string]*DynLibrary{}
)

// DynLibrary is a Library backed by the shared object loaded with purego.
// Each path is loaded once per process and stays mapped: trampolines handed
// to the core cannot be reclaimed.
type DynLibrary struct {
	path   string
	handle uintptr
	seq    Sequence

	symMu   sync.Mutex
	symbols map[string]uintptr
	tramps  map[string]uintptr
	f64     map[string]func(uintptr, float64, uintptr)

	routeMu sync.Mutex
	routes  map[int32]func(*Block)

	logger atomic.Pointer[zap.Logger]
	nulls  atomic.Int64
}

// Load opens the core at path, or returns the instance already loaded from
// it.
func Load(path string) (*DynLibrary, error) {
	path = FindLibrary(path)
	loadedMu.Lock()
	defer loadedMu.Unlock()
	if lib, ok := loaded[path]; ok {
		return lib, nil
	}
	handle, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("native: load %s: %w", path, err)
	}
	lib := &DynLibrary{
		path:    path,
		handle:  handle,
		symbols: make(map[string]uintptr),
		tramps:  make(map[string]uintptr),
		f64:     make(map[string]func(uintptr, float64, uintptr)),
		routes:  make(map[int32]func(*Block)),
	}
	loaded[path] = lib
	return lib, nil
}

// SetLogger sets where the library reports completions it cannot route.
func (l *DynLibrary) SetLogger(log *zap.Logger) {
	if log != nil {
		l.logger.Store(log)
	}
}

func (l *DynLibrary) log() *zap.Logger {
	if log := l.logger.Load(); log != nil {
		return log
	}
	return zap.NewNop()
}

// NullCompletions counts callbacks that arrived without a response block.
// Their request id is unknown, so the waiting request is only released by
// its callback timeout.
func (l *DynLibrary) NullCompletions() int64 { return l.nulls.Load() }

// Path is the file the library was loaded from.
func (l *DynLibrary) Path() string { return l.path }

func (l *DynLibrary) symbol(fn string) (uintptr, error) {
	l.symMu.Lock()
	defer l.symMu.Unlock()
	if sym, ok := l.symbols[fn]; ok {
		return sym, nil
	}
	sym, err := lookupSymbol(l.handle, fn)
	if err != nil || sym == 0 {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, fn)
	}
	l.symbols[fn] = sym
	return sym, nil
}

// Call implements Library.
func (l *DynLibrary) Call(fn string, args ...uintptr) (uintptr, error) {
	sym, err := l.symbol(fn)
	if err != nil {
		return 0, err
	}
	r1, _, _ := purego.SyscallN(sym, args...)
	return r1, nil
}

// CallF64 implements Library. The typed function is built once per export so
// purego can place v in a floating-point register.
func (l *DynLibrary) CallF64(fn string, a uintptr, v float64, b uintptr) error {
	sym, err := l.symbol(fn)
	if err != nil {
		return err
	}
	l.symMu.Lock()
	call, ok := l.f64[fn]
	if !ok {
		purego.RegisterFunc(&call, sym)
		l.f64[fn] = call
	}
	l.symMu.Unlock()
	call(a, v, b)
	return nil
}

// CallAsync implements Library.
func (l *DynLibrary) CallAsync(fn string, requestID int32, done func(*Block), args ...uintptr) error {
	af, ok := AsyncFuncs[fn]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunction, fn)
	}
	sym, err := l.symbol(fn)
	if err != nil {
		return err
	}
	if _, err := l.symbol(af.Free); err != nil {
		return err
	}
	cb := l.trampoline(fn, af)

	l.routeMu.Lock()
	l.routes[requestID] = done
	l.routeMu.Unlock()

	purego.SyscallN(sym, WithCallback(af, cb, args)...)
	return nil
}

// trampoline returns the C callback for fn, creating it on first use. One
// callback per export keeps the process within purego's callback limit.
func (l *DynLibrary) trampoline(fn string, af AsyncFunc) uintptr {
	l.symMu.Lock()
	defer l.symMu.Unlock()
	if cb, ok := l.tramps[fn]; ok {
		return cb
	}
	cb := purego.NewCallback(func(resp uintptr) {
		l.complete(fn, af, resp)
	})
	l.tramps[fn] = cb
	return cb
}

func (l *DynLibrary) complete(fn string, af AsyncFunc, resp uintptr) {
	if resp == 0 {
		l.nulls.Add(1)
		l.routeMu.Lock()
		pending := len(l.routes)
		l.routeMu.Unlock()
		l.log().Warn("native completion without response block",
			zap.String("fn", fn), zap.Int("pending", pending))
		return
	}
	block := NewBlock(resp, FreeFunc(l, af.Free))
	id := RequestIDAt(af, resp)

	l.routeMu.Lock()
	done, ok := l.routes[id]
	delete(l.routes, id)
	l.routeMu.Unlock()

	if !ok {
		block.Release()
		return
	}
	done(block)
}

// Free implements Library.
func (l *DynLibrary) Free(fn string, ptr uintptr) {
	if ptr == 0 {
		return
	}
	sym, err := l.symbol(fn)
	if err != nil {
		return
	}
	purego.SyscallN(sym, ptr)
}

// NextRequestID implements Library.
func (l *DynLibrary) NextRequestID() int32 { return l.seq.Next() }

// Close implements Library. The shared object stays loaded.
func (l *DynLibrary) Close() error { return nil }
