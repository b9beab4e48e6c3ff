package cpu

import (
	"unsafe"
)

// KernelFunc executes a single kernel invocation on the CPU device. Invocations of one pass
// run concurrently in no particular order, so a kernel must only write the elements it owns.
// Returning an error (or panicking) fails the whole pass.
type KernelFunc func(inv Invocation) error

// Invocation carries the built-in ids and bound resources of one kernel invocation,
// mirroring the @builtin ids and @group(0) bindings a WGSL entry point receives.
type Invocation struct {
	// GlobalID is GroupID*GroupSize + LocalID.
	GlobalID int

	// GroupID is the index of the thread group.
	GroupID int

	// LocalID is the index of the invocation inside its group.
	LocalID int

	// GroupSize is the number of invocations per group.
	GroupSize int

	// Bindings are the pass buffers in binding order.
	Bindings []Binding

	// Uniform is the pass parameter blob, or nil.
	Uniform []byte
}

// Binding is a word-aligned view of a buffer bound to a pass.
type Binding struct {
	words []uint32
}

// Float32 returns the binding reinterpreted as float32 values.
// The slice aliases the pass's working copy of the buffer.
func (b Binding) Float32() []float32 {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.words[0])), len(b.words))
}

// Uint32 returns the binding as uint32 words.
// The slice aliases the pass's working copy of the buffer.
func (b Binding) Uint32() []uint32 {
	return b.words
}

// Size returns the binding size in bytes.
func (b Binding) Size() int {
	return len(b.words) * 4
}
