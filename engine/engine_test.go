package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device/cpu"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/geometry"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/mesh"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/profiler"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, kernels map[string]cpu.KernelFunc, options ...dispatcher.DispatcherBuilderOption) (dispatcher.Dispatcher, mesh.MeshBuffers, geometry.MeshData) {
	t.Helper()
	dev := cpu.NewDevice(cpu.WithKernels(kernels), cpu.WithWorkers(2))
	t.Cleanup(dev.Release)

	d, err := dispatcher.NewDispatcher(dev, options...)
	require.NoError(t, err)
	t.Cleanup(d.Release)

	data, err := geometry.BuildGeosphere(1, 1)
	require.NoError(t, err)
	m, err := mesh.NewMeshBuffers(dev, data, mesh.WithLabel("Sphere"))
	require.NoError(t, err)
	t.Cleanup(m.Release)
	return d, m, data
}

func TestEngine_RunsTickLimit(t *testing.T) {
	p := profiler.NewProfiler()
	d, m, data := setup(t, kernel.CPUKernels(), dispatcher.WithObserver(p.Observe))

	start := kernel.NewShaderData(mgl32.Vec3{0.5, 0, 0})
	e := NewEngine(d,
		WithTickRate(500),
		WithMaxTicks(5),
		WithMesh(0, m),
		WithShaderData(start),
		WithDrift(DefaultDrift),
		WithProfiler(p),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, 5, e.Ticks())
	want := start.Location.Add(DefaultDrift.Mul(5))
	assert.True(t, common.ApproxEqual(want, e.ShaderData().Location, 1e-6))

	totals := p.Totals()
	assert.Equal(t, 5, totals.Dispatches+e.Skipped())
	assert.Zero(t, totals.Failures)
	assert.GreaterOrEqual(t, totals.Dispatches, 1)

	positions, err := m.ReadPositions(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, data.Positions, positions, "the mesh must have been deformed")
}

func TestEngine_StopsOnDispatchFailure(t *testing.T) {
	kernels := kernel.CPUKernels()
	kernels[kernel.NormalKernel] = func(cpu.Invocation) error { return errors.New("boom") }
	d, m, _ := setup(t, kernels)

	e := NewEngine(d, WithTickRate(500), WithMesh(0, m))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDispatch)

	var de *common.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "recompute normals", de.Pass)
	assert.NoError(t, ctx.Err(), "the failure must stop the loop before the deadline")
}

func TestEngine_QuitFromCallback(t *testing.T) {
	d, m, _ := setup(t, kernel.CPUKernels())

	e := NewEngine(d, WithTickRate(500), WithMesh(0, m))
	e.SetTickCallback(func(float32) { e.Quit() })
	e.Quit()
	e.Quit()

	require.NoError(t, e.Run(context.Background()))
	assert.LessOrEqual(t, e.Ticks(), 1)
}

func TestEngine_ContextBoundsRun(t *testing.T) {
	d, m, _ := setup(t, kernel.CPUKernels())
	e := NewEngine(d, WithTickRate(200), WithMesh(0, m))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Error(t, ctx.Err())
}

func TestEngine_SkipsBusyMesh(t *testing.T) {
	gate := make(chan struct{})
	kernels := kernel.CPUKernels()
	vertex := kernels[kernel.VertexKernel]
	kernels[kernel.VertexKernel] = func(inv cpu.Invocation) error {
		<-gate
		return vertex(inv)
	}
	d, m, _ := setup(t, kernels)

	e := NewEngine(d, WithTickRate(500), WithMaxTicks(3), WithMesh(0, m))
	e.SetTickCallback(func(float32) {
		if e.Ticks() == 3 {
			close(gate)
		}
	})

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 3, e.Ticks())
	assert.Equal(t, 2, e.Skipped())
}

func TestEngine_Meshes(t *testing.T) {
	d, m, _ := setup(t, kernel.CPUKernels())
	e := NewEngine(d)

	assert.Nil(t, e.Mesh(1))
	e.AddMesh(1, m)
	assert.Same(t, m, e.Mesh(1))

	cp := e.Meshes()
	delete(cp, 1)
	assert.Len(t, e.Meshes(), 1)

	e.RemoveMesh(1)
	assert.Empty(t, e.Meshes())
	assert.Same(t, d, e.Dispatcher())
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, time.Second/60, tickInterval(0))
	assert.Equal(t, 10*time.Millisecond, tickInterval(100))
	assert.Equal(t, time.Duration(float64(time.Second)/7.5), tickInterval(7.5))
}
