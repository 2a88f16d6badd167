package native

import (
	"errors"
	"runtime"
	"unsafe"
)

// ErrMalformedArray is returned when a counted native array holds a NULL
// entry before its declared length.
var ErrMalformedArray = errors.New("native: array shorter than its declared length")

// Arena owns the Go memory handed to the core for the duration of one call.
// Everything allocated through it stays pinned until Release.
type Arena struct {
	pinner runtime.Pinner
	keep   []any
}

// CString returns a pinned NUL-terminated copy of s. The empty string yields
// a valid pointer to a lone NUL, never nil.
func (a *Arena) CString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	a.pinner.Pin(&b[0])
	a.keep = append(a.keep, b)
	return &b[0]
}

// StringArray returns a pinned pointer array holding one C string per entry
// followed by a NULL slot. A nil or empty slice yields nil.
func (a *Arena) StringArray(ss []string) **byte {
	if len(ss) == 0 {
		return nil
	}
	arr := make([]*byte, len(ss)+1)
	for i, s := range ss {
		arr[i] = a.CString(s)
	}
	a.pinner.Pin(&arr[0])
	a.keep = append(a.keep, arr)
	return &arr[0]
}

// Pin keeps v pinned for the lifetime of a and returns it.
func Pin[T any](a *Arena, v *T) *T {
	a.pinner.Pin(v)
	a.keep = append(a.keep, v)
	return v
}

// PinArray pins a NULL-terminated copy of items and returns a pointer to its
// first slot, or nil when items is empty.
func PinArray[T any](a *Arena, items []*T) **T {
	if len(items) == 0 {
		return nil
	}
	arr := make([]*T, len(items)+1)
	copy(arr, items)
	for _, it := range items {
		a.pinner.Pin(it)
	}
	a.pinner.Pin(&arr[0])
	a.keep = append(a.keep, arr)
	return &arr[0]
}

// Release unpins everything the arena allocated.
func (a *Arena) Release() {
	a.pinner.Unpin()
	runtime.KeepAlive(a.keep)
	a.keep = nil
}

// Addr converts a Go pointer to a call argument.
func Addr[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}

// GoString copies a NUL-terminated string out of native memory. nil maps to
// the empty string.
func GoString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// Strings copies exactly n strings out of a counted pointer array.
func Strings(p **byte, n int32) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	if p == nil {
		return nil, ErrMalformedArray
	}
	slots := unsafe.Slice(p, int(n))
	out := make([]string, 0, n)
	for _, s := range slots {
		if s == nil {
			return nil, ErrMalformedArray
		}
		out = append(out, GoString(s))
	}
	return out, nil
}

// TerminatedStrings copies a NULL-terminated pointer array.
func TerminatedStrings(p **byte) []string {
	var out []string
	if p == nil {
		return out
	}
	for i := 0; ; i++ {
		s := *(**byte)(unsafe.Add(unsafe.Pointer(p), uintptr(i)*unsafe.Sizeof(p)))
		if s == nil {
			return out
		}
		out = append(out, GoString(s))
	}
}

// Elements returns the first n entries of a counted struct-pointer array.
func Elements[T any](p **T, n int32) ([]*T, error) {
	if n <= 0 {
		return nil, nil
	}
	if p == nil {
		return nil, ErrMalformedArray
	}
	slots := unsafe.Slice(p, int(n))
	out := make([]*T, 0, n)
	for _, e := range slots {
		if e == nil {
			return nil, ErrMalformedArray
		}
		out = append(out, e)
	}
	return out, nil
}
