package cpu

// CPUDeviceBuilderOption is a functional option for configuring a CPU device.
// Use the With* functions to create options that are applied directly to the device instance.
type CPUDeviceBuilderOption func(*cpuDevice)

// WithKernel registers a Go kernel under name so Device.Kernel can resolve it.
//
// Parameters:
//   - name: the kernel entry point name
//   - fn: the kernel function
//
// Returns:
//   - CPUDeviceBuilderOption: option function to apply
func WithKernel(name string, fn KernelFunc) CPUDeviceBuilderOption {
	return func(d *cpuDevice) {
		d.kernels[name] = fn
	}
}

// WithKernels registers every kernel in the map. Later registrations replace earlier ones.
//
// Parameters:
//   - kernels: kernel functions keyed by entry point name
//
// Returns:
//   - CPUDeviceBuilderOption: option function to apply
func WithKernels(kernels map[string]KernelFunc) CPUDeviceBuilderOption {
	return func(d *cpuDevice) {
		for name, fn := range kernels {
			d.kernels[name] = fn
		}
	}
}

// WithThreadExecutionWidth sets the thread execution width reported by the device.
// Values <= 0 are ignored.
//
// Parameters:
//   - width: threads per group for width-sized dispatches (default 32)
//
// Returns:
//   - CPUDeviceBuilderOption: option function to apply
func WithThreadExecutionWidth(width int) CPUDeviceBuilderOption {
	return func(d *cpuDevice) {
		if width > 0 {
			d.threadExecutionWidth = width
		}
	}
}

// WithMaxWorkgroups sets the per-pass group limit. Values <= 0 are ignored.
//
// Parameters:
//   - n: the largest group count a pass may dispatch (default 65535)
//
// Returns:
//   - CPUDeviceBuilderOption: option function to apply
func WithMaxWorkgroups(n int) CPUDeviceBuilderOption {
	return func(d *cpuDevice) {
		if n > 0 {
			d.maxWorkgroups = n
		}
	}
}

// WithWorkers sets the maximum number of pool workers executing groups concurrently.
// Values <= 0 are ignored.
//
// Parameters:
//   - n: the worker count (default NumCPU-1, at least 1)
//
// Returns:
//   - CPUDeviceBuilderOption: option function to apply
func WithWorkers(n int) CPUDeviceBuilderOption {
	return func(d *cpuDevice) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueDepth sets how many submissions may be pending before Submit blocks.
// Values <= 0 are ignored.
//
// Parameters:
//   - n: the submission queue depth (default 64)
//
// Returns:
//   - CPUDeviceBuilderOption: option function to apply
func WithQueueDepth(n int) CPUDeviceBuilderOption {
	return func(d *cpuDevice) {
		if n > 0 {
			d.queueDepth = n
		}
	}
}
