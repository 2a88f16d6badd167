package native

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Block is a response allocated by the core. It must be released exactly
// once through the free export matching the call that produced it.
type Block struct {
	ptr  uintptr
	free func(uintptr)
	once sync.Once
}

// NewBlock wraps ptr. free is not invoked for a nil block.
func NewBlock(ptr uintptr, free func(uintptr)) *Block {
	return &Block{ptr: ptr, free: free}
}

// IsNil reports whether the core returned no block.
func (b *Block) IsNil() bool { return b == nil || b.ptr == 0 }

// Addr is the raw address, used to hand the block back to the core.
func (b *Block) Addr() uintptr { return b.ptr }

// Release frees the block. Further calls are no-ops.
func (b *Block) Release() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		if b.ptr != 0 && b.free != nil {
			b.free(b.ptr)
		}
	})
}

// View reinterprets the block as a *T. The view is only valid until Release.
func View[T any](b *Block) *T {
	if b.IsNil() {
		return nil
	}
	return (*T)(unsafe.Pointer(b.ptr))
}

// Sequence hands out non-zero request ids. It wraps back to 1 after
// math.MaxInt32.
type Sequence struct {
	v atomic.Int32
}

// Next returns the next id.
func (s *Sequence) Next() int32 {
	for {
		old := s.v.Load()
		next := old + 1
		if next <= 0 {
			next = 1
		}
		if s.v.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Pointer converts an address returned by the core.
func Pointer(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p)
}
