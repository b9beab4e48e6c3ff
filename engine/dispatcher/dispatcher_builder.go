package dispatcher

// DispatcherBuilderOption is a functional option for configuring a Dispatcher.
// Use the With* functions to create options that are applied directly to the dispatcher instance.
type DispatcherBuilderOption func(*dispatcher)

// WithVertexKernel overrides the entry point resolved for the vertex pass.
//
// Parameters:
//   - name: the kernel name (default kernel.VertexKernel)
//
// Returns:
//   - DispatcherBuilderOption: option function to apply
func WithVertexKernel(name string) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.vertexKernelName = name
	}
}

// WithNormalKernel overrides the entry point resolved for the normal pass.
//
// Parameters:
//   - name: the kernel name (default kernel.NormalKernel)
//
// Returns:
//   - DispatcherBuilderOption: option function to apply
func WithNormalKernel(name string) DispatcherBuilderOption {
	return func(d *dispatcher) {
		d.normalKernelName = name
	}
}

// WithObserver registers a callback invoked with the stats of every completed dispatch.
// Callbacks run on the completion goroutine before the dispatch's Submission is done.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - DispatcherBuilderOption: option function to apply
func WithObserver(fn func(DispatchStats)) DispatcherBuilderOption {
	return func(d *dispatcher) {
		if fn != nil {
			d.observers = append(d.observers, fn)
		}
	}
}
