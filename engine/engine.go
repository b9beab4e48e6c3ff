package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/mesh"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/profiler"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrRunning is returned by Run when the engine loop is already running.
var ErrRunning = errors.New("engine: already running")

// engine implements the Engine interface.
// Drives the fixed-rate deformation loop over the registered meshes.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	pending sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	dispatcher dispatcher.Dispatcher

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	maxTicks       int

	// mu guards the fields below.
	mu         sync.Mutex
	meshes     map[int]mesh.MeshBuffers
	shaderData kernel.ShaderData
	drift      mgl32.Vec3
	ticks      int
	skipped    int
	firstErr   error
}

// Engine is the main entry point for the engine.
// It runs the tick loop that submits one deformation per registered mesh per tick.
type Engine interface {
	// Dispatcher returns the dispatcher the engine submits to.
	//
	// Returns:
	//   - dispatcher.Dispatcher: the dispatcher instance
	Dispatcher() dispatcher.Dispatcher

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// Profiler returns the engine's profiler.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler instance
	Profiler() *profiler.Profiler

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called after each tick has been submitted.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// AddMesh registers a mesh at the given key. Meshes are submitted in ascending key order.
	//
	// Parameters:
	//   - key: the submission order key
	//   - m: the mesh to deform each tick
	AddMesh(key int, m mesh.MeshBuffers)

	// RemoveMesh removes the mesh at the given key. The mesh is not released.
	//
	// Parameters:
	//   - key: the key of the mesh to remove
	RemoveMesh(key int)

	// Mesh retrieves the mesh registered at the given key, or nil.
	//
	// Parameters:
	//   - key: the key of the mesh
	//
	// Returns:
	//   - mesh.MeshBuffers: the mesh at the key, or nil if not found
	Mesh(key int) mesh.MeshBuffers

	// Meshes returns a copy of all registered meshes keyed by submission order.
	//
	// Returns:
	//   - map[int]mesh.MeshBuffers: a copy of the meshes map
	Meshes() map[int]mesh.MeshBuffers

	// ShaderData returns the parameters the next tick will dispatch with.
	//
	// Returns:
	//   - kernel.ShaderData: the current parameters
	ShaderData() kernel.ShaderData

	// SetShaderData replaces the parameters used by following ticks.
	//
	// Parameters:
	//   - data: the new parameters
	SetShaderData(data kernel.ShaderData)

	// Ticks returns the number of ticks executed so far.
	//
	// Returns:
	//   - int: the tick count
	Ticks() int

	// Skipped returns how many per-mesh submissions were skipped because the mesh was busy.
	//
	// Returns:
	//   - int: the skip count
	Skipped() int

	// Run executes the tick loop until ctx is done, Quit is called, the tick limit is reached,
	// or a dispatch fails. It waits for every in-flight dispatch before returning.
	//
	// Parameters:
	//   - ctx: bounds the loop
	//
	// Returns:
	//   - error: the first dispatch failure, ErrRunning, or nil
	Run(ctx context.Context) error

	// Quit signals the loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine submitting to d with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - d: the dispatcher used for every deformation
//   - options: functional options for engine configuration (tick rate, meshes, drift, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(d dispatcher.Dispatcher, options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		dispatcher:      d,
		meshes:          make(map[int]mesh.MeshBuffers),
		shaderData:      kernel.NewShaderData(mgl32.Vec3{}),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Dispatcher() dispatcher.Dispatcher {
	return e.dispatcher
}

func (e *engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	common.Logger().Info("engine started", "tickRate", e.engineTickRate, "maxTicks", e.maxTicks, "meshes", len(e.Meshes()))
	e.loop(ctx)
	e.pending.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	common.Logger().Info("engine stopped", "ticks", e.ticks, "skipped", e.skipped, "error", e.firstErr)
	return e.firstErr
}

// loop runs the fixed-rate tick loop.
// Listens for dynamic rate changes via tickRateChannel and exits on quit, ctx, or the tick limit.
func (e *engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tick(ctx, dt) {
				return
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// tick submits one deformation per mesh and advances the location by the drift.
// Returns true once the tick limit has been reached.
func (e *engine) tick(ctx context.Context, dt float32) bool {
	e.mu.Lock()
	data := e.shaderData
	keys := make([]int, 0, len(e.meshes))
	for k := range e.meshes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	meshes := make([]mesh.MeshBuffers, 0, len(keys))
	for _, k := range keys {
		meshes = append(meshes, e.meshes[k])
	}
	e.mu.Unlock()

	skipped := 0
	for _, m := range meshes {
		sub, err := e.dispatcher.Deform(ctx, m, data)
		if errors.Is(err, common.ErrMeshBusy) {
			common.Logger().Debug("mesh busy, skipping tick", "mesh", m.Label())
			skipped++
			continue
		}
		if err != nil {
			e.fail(err)
			continue
		}
		e.pending.Add(1)
		go func() {
			defer e.pending.Done()
			<-sub.Done()
			if err := sub.Err(); err != nil {
				e.fail(err)
			}
		}()
	}

	e.mu.Lock()
	e.shaderData.Location = e.shaderData.Location.Add(e.drift)
	e.ticks++
	e.skipped += skipped
	done := e.maxTicks > 0 && e.ticks >= e.maxTicks
	e.mu.Unlock()

	if e.tickCallback != nil {
		e.tickCallback(dt)
	}
	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick()
	}
	return done
}

// fail records the first dispatch error and stops the loop.
func (e *engine) fail(err error) {
	e.mu.Lock()
	if e.firstErr == nil {
		e.firstErr = err
	}
	e.mu.Unlock()
	common.Logger().Error("dispatch failed", "error", err)
	e.signalQuit()
}

// Quit signals the loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal the loop to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	newRate := tickInterval(fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called after each tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) AddMesh(key int, m mesh.MeshBuffers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meshes[key] = m
}

func (e *engine) RemoveMesh(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.meshes, key)
}

func (e *engine) Mesh(key int) mesh.MeshBuffers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meshes[key]
}

func (e *engine) Meshes() map[int]mesh.MeshBuffers {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]mesh.MeshBuffers, len(e.meshes))
	for k, v := range e.meshes {
		cp[k] = v
	}
	return cp
}

func (e *engine) ShaderData() kernel.ShaderData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shaderData
}

func (e *engine) SetShaderData(data kernel.ShaderData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shaderData = data
}

func (e *engine) Ticks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

func (e *engine) Skipped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skipped
}

// tickInterval converts a tick rate to a ticker period, treating values <= 0 as 60Hz.
func tickInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}
