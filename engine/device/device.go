// Package device defines the compute device abstraction the dispatcher drives. A device
// owns raw buffers and resolved kernels and executes ordered lists of compute passes.
package device

import (
	"context"
)

// BufferUsage is a bit set describing how a buffer will be bound.
type BufferUsage uint32

const (
	// BufferUsageStorage marks a buffer that is bound as a storage buffer in compute passes.
	BufferUsageStorage BufferUsage = 1 << iota

	// BufferUsageVertex marks a buffer that may also be bound as a vertex buffer by a renderer.
	BufferUsageVertex

	// BufferUsageIndex marks a buffer that may also be bound as an index buffer by a renderer.
	BufferUsageIndex
)

// Has reports whether every bit of flag is set in u.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// Device is a parallel compute device. Implementations must be safe for concurrent use,
// but passes submitted in one Submit call always execute strictly in order.
type Device interface {
	// Name returns a human readable identifier for the device.
	//
	// Returns:
	//   - string: the device name
	Name() string

	// ThreadExecutionWidth returns the device's preferred number of threads per group.
	// The vertex deformation pass sizes its groups by this value.
	//
	// Returns:
	//   - int: the thread execution width (always > 0)
	ThreadExecutionWidth() int

	// MaxWorkgroups returns the largest group count a single pass may dispatch.
	//
	// Returns:
	//   - int: the per-pass group limit
	MaxWorkgroups() int

	// CreateBuffer allocates a buffer initialized with data. The size of the buffer is len(data)
	// and must be a non-zero multiple of 4.
	//
	// Parameters:
	//   - label: a debug label
	//   - usage: the usage flags
	//   - data: the initial contents (copied)
	//
	// Returns:
	//   - Buffer: the created buffer
	//   - error: an error if the allocation failed or the size is invalid
	CreateBuffer(label string, usage BufferUsage, data []byte) (Buffer, error)

	// ReadBuffer downloads the full contents of buf. It observes every pass whose
	// submission has completed before the call.
	//
	// Parameters:
	//   - ctx: bounds the wait for the download
	//   - buf: the buffer to read
	//
	// Returns:
	//   - []byte: a copy of the buffer contents
	//   - error: an error if the read failed or ctx expired
	ReadBuffer(ctx context.Context, buf Buffer) ([]byte, error)

	// Kernel resolves a named kernel for each of the given group sizes. Resolution happens
	// once; the returned Kernel is reused for every dispatch.
	//
	// Parameters:
	//   - name: the kernel entry point name
	//   - groupSizes: the thread group sizes the kernel will be dispatched with
	//
	// Returns:
	//   - Kernel: the resolved kernel
	//   - error: an error if the kernel is unknown or failed to compile
	Kernel(name string, groupSizes ...int) (Kernel, error)

	// Submit enqueues passes for execution. Passes run in order; a pass observes every write
	// made by the passes before it. The returned Submission completes when all passes have
	// finished or one has failed. If a pass fails, it and every following pass leave their
	// output buffers unchanged.
	//
	// Parameters:
	//   - passes: the ordered passes to execute
	//
	// Returns:
	//   - Submission: a handle for awaiting completion
	//   - error: an error if the passes were rejected before anything was enqueued
	Submit(passes ...Pass) (Submission, error)

	// Release frees every device resource. The device must not be used afterward.
	Release()
}

// Buffer is an opaque device buffer handle.
type Buffer interface {
	// Label returns the buffer's debug label.
	Label() string

	// Size returns the buffer size in bytes.
	Size() int

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// Release frees the buffer. Releasing twice is a no-op.
	Release()
}

// Kernel is a resolved compute kernel, ready to dispatch at any of its group sizes.
type Kernel interface {
	// Name returns the kernel entry point name.
	Name() string

	// GroupSizes returns the group sizes the kernel was resolved for.
	GroupSizes() []int

	// Release frees the kernel's compiled variants.
	Release()
}

// Pass describes one compute dispatch. Buffers are bound in order to bindings 0..n-1 of
// group 0; when Uniform is non-empty it is bound after them at binding n.
type Pass struct {
	// Label names the pass in errors and logs.
	Label string

	// Kernel is the resolved kernel to execute.
	Kernel Kernel

	// Buffers are the storage buffers bound to the kernel, in binding order.
	Buffers []Buffer

	// Uniform is an optional parameter blob copied at submission time.
	Uniform []byte

	// Groups is the number of thread groups to dispatch.
	Groups int

	// GroupSize is the number of threads per group. It must be one of Kernel.GroupSizes().
	GroupSize int
}

// Invocations returns the total number of kernel invocations the pass dispatches.
func (p Pass) Invocations() int {
	return p.Groups * p.GroupSize
}
