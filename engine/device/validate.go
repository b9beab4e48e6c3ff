package device

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNoKernel is returned when a pass has no kernel attached.
	ErrNoKernel = errors.New("pass has no kernel")

	// ErrNoBuffers is returned when a pass binds no buffers.
	ErrNoBuffers = errors.New("pass binds no buffers")

	// ErrGroupCount is returned when a pass dispatches zero groups or more than the device allows.
	ErrGroupCount = errors.New("invalid group count")

	// ErrGroupSize is returned when a pass uses a group size its kernel was not resolved for.
	ErrGroupSize = errors.New("group size not resolved for kernel")

	// ErrUnknownKernel is returned by Device.Kernel for a name the device cannot resolve.
	ErrUnknownKernel = errors.New("unknown kernel")

	// ErrBufferSize is returned for buffers whose size is zero or not a multiple of 4.
	ErrBufferSize = errors.New("buffer size must be a non-zero multiple of 4")
)

// ValidatePass checks the device-independent preconditions of a pass.
//
// Parameters:
//   - p: the pass to validate
//   - maxGroups: the device's per-pass group limit
//
// Returns:
//   - error: a descriptive error wrapping one of the package sentinels, or nil
func ValidatePass(p Pass, maxGroups int) error {
	if p.Kernel == nil {
		return ErrNoKernel
	}
	if len(p.Buffers) == 0 {
		return ErrNoBuffers
	}
	for i, b := range p.Buffers {
		if b == nil {
			return fmt.Errorf("binding %d: %w", i, ErrNoBuffers)
		}
	}
	if p.Groups <= 0 || p.Groups > maxGroups {
		return fmt.Errorf("%w: %d (limit %d)", ErrGroupCount, p.Groups, maxGroups)
	}
	if !slices.Contains(p.Kernel.GroupSizes(), p.GroupSize) {
		return fmt.Errorf("%w: %s has %v, pass wants %d", ErrGroupSize, p.Kernel.Name(), p.Kernel.GroupSizes(), p.GroupSize)
	}
	return nil
}

// ValidateBufferSize checks that size is usable as a device buffer size.
//
// Parameters:
//   - size: the requested size in bytes
//
// Returns:
//   - error: ErrBufferSize wrapped with the size, or nil
func ValidateBufferSize(size int) error {
	if size <= 0 || size%4 != 0 {
		return fmt.Errorf("%w: %d", ErrBufferSize, size)
	}
	return nil
}
