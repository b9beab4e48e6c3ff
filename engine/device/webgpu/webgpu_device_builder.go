package webgpu

// WebGPUDeviceBuilderOption is a functional option for configuring a WebGPU device.
// Use the With* functions to create options that are applied directly to the device instance.
type WebGPUDeviceBuilderOption func(*gpuDevice)

// WithForceFallbackAdapter requests the software fallback adapter instead of a hardware one.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - WebGPUDeviceBuilderOption: option function to apply
func WithForceFallbackAdapter(force bool) WebGPUDeviceBuilderOption {
	return func(d *gpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithThreadExecutionWidth sets the preferred workgroup size. The value is clamped to the
// device limits once the device exists. Values <= 0 are ignored.
//
// Parameters:
//   - width: threads per group (default 64)
//
// Returns:
//   - WebGPUDeviceBuilderOption: option function to apply
func WithThreadExecutionWidth(width int) WebGPUDeviceBuilderOption {
	return func(d *gpuDevice) {
		if width > 0 {
			d.threadExecutionWidth = width
		}
	}
}

// WithSource replaces the WGSL source provider used to compile kernels.
//
// Parameters:
//   - fn: renders the WGSL module for a kernel name and workgroup size (default kernel.Source)
//
// Returns:
//   - WebGPUDeviceBuilderOption: option function to apply
func WithSource(fn SourceFunc) WebGPUDeviceBuilderOption {
	return func(d *gpuDevice) {
		if fn != nil {
			d.source = fn
		}
	}
}
