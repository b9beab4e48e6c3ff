package engine

import (
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/mesh"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/profiler"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultDrift is the per-tick location offset of the demo loop.
var DefaultDrift = mgl32.Vec3{0.001, 0, 0}

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the engine's profiler, e.g. with one that is also registered as a
// dispatcher observer.
//
// Parameters:
//   - p: the profiler to tick
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = tickInterval(fps)
	}
}

// WithMaxTicks stops Run after n ticks. Values <= 0 run until the context ends or Quit.
//
// Parameters:
//   - n: the tick limit
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxTicks(n int) EngineBuilderOption {
	return func(e *engine) {
		e.maxTicks = max(n, 0)
	}
}

// WithMesh registers a mesh at the given key during engine construction.
//
// Parameters:
//   - key: the submission order key
//   - m: the mesh to deform each tick
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMesh(key int, m mesh.MeshBuffers) EngineBuilderOption {
	return func(e *engine) {
		e.meshes[key] = m
	}
}

// WithShaderData sets the initial deformation parameters.
//
// Parameters:
//   - data: the parameters of the first tick
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithShaderData(data kernel.ShaderData) EngineBuilderOption {
	return func(e *engine) {
		e.shaderData = data
	}
}

// WithDrift sets the offset added to the location after every tick. Use DefaultDrift for the
// demo motion; the default is no drift.
//
// Parameters:
//   - drift: the per-tick location offset
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDrift(drift mgl32.Vec3) EngineBuilderOption {
	return func(e *engine) {
		e.drift = drift
	}
}
