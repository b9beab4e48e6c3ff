// Package dispatcher drives the two-pass mesh deformation on a compute device: a vertex
// pass from buffer A into buffer B, then a normal pass recomputing face normals from B.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/mesh"
)

const (
	vertexPassLabel = "deform vertices"
	normalPassLabel = "recompute normals"
)

// ErrBufferMismatch is reported when a mesh's buffers do not match its vertex count.
var ErrBufferMismatch = errors.New("buffer size does not match vertex count")

// DispatchStats describes one completed Deform call.
type DispatchStats struct {
	// Mesh is the label of the deformed mesh.
	Mesh string
	// Vertices is the number of corner records processed.
	Vertices int
	// VertexGroups and VertexGroupSize describe the vertex pass.
	VertexGroups, VertexGroupSize int
	// NormalGroups and NormalGroupSize describe the normal pass.
	NormalGroups, NormalGroupSize int
	// Elapsed is the time from submission to completion.
	Elapsed time.Duration
	// Err is the dispatch error, or nil.
	Err error
}

// dispatcher is the implementation of the Dispatcher interface.
type dispatcher struct {
	dev device.Device

	vertexKernelName string
	normalKernelName string
	vertexKernel     device.Kernel
	normalKernel     device.Kernel

	observers []func(DispatchStats)
	released  atomic.Bool
}

// Dispatcher runs mesh deformations. Kernels are resolved once by NewDispatcher and reused
// for every call. A Dispatcher may be shared between goroutines, but each mesh accepts one
// dispatch at a time.
type Dispatcher interface {
	// Device returns the device the dispatcher submits to.
	Device() device.Device

	// Deform submits the vertex and normal passes for m and returns without waiting.
	// The mesh stays busy until the returned Submission is done.
	//
	// Parameters:
	//   - ctx: reserved for submission-time cancellation; the dispatch itself is not cancellable
	//   - m: the mesh to deform
	//   - data: the deformation parameters, copied at submission
	//
	// Returns:
	//   - device.Submission: completes once both passes have finished
	//   - error: a *common.DispatchError if the dispatch was rejected
	Deform(ctx context.Context, m mesh.MeshBuffers, data kernel.ShaderData) (device.Submission, error)

	// DeformSync is Deform followed by waiting for completion. Cancelling ctx abandons the
	// wait; the dispatch still runs to completion and the mesh stays busy until it does.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - m: the mesh to deform
	//   - data: the deformation parameters
	//
	// Returns:
	//   - error: a *common.DispatchError, ctx.Err(), or nil
	DeformSync(ctx context.Context, m mesh.MeshBuffers, data kernel.ShaderData) error

	// Release frees the resolved kernels. The device is not released.
	Release()
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher resolves the deformation kernels on dev. The vertex kernel is resolved for
// the device's thread execution width and the normal kernel for every size the
// thread-group sizer can choose.
//
// Parameters:
//   - dev: the compute device
//   - options: a variadic list of DispatcherBuilderOption functions
//
// Returns:
//   - Dispatcher: the ready dispatcher
//   - error: a *common.DeviceInitError if the device is missing or a kernel cannot be resolved
func NewDispatcher(dev device.Device, options ...DispatcherBuilderOption) (Dispatcher, error) {
	if dev == nil {
		return nil, common.NewDeviceInitError("device", errors.New("no compute device"))
	}

	d := &dispatcher{
		dev:              dev,
		vertexKernelName: kernel.VertexKernel,
		normalKernelName: kernel.NormalKernel,
	}
	for _, option := range options {
		option(d)
	}

	vk, err := dev.Kernel(d.vertexKernelName, dev.ThreadExecutionWidth())
	if err != nil {
		return nil, common.NewDeviceInitError("kernel "+d.vertexKernelName, err)
	}
	nk, err := dev.Kernel(d.normalKernelName, NormalGroupSizes()...)
	if err != nil {
		vk.Release()
		return nil, common.NewDeviceInitError("kernel "+d.normalKernelName, err)
	}
	d.vertexKernel, d.normalKernel = vk, nk

	common.Logger().Info("dispatcher ready",
		"device", dev.Name(),
		"vertexKernel", vk.Name(),
		"normalKernel", nk.Name(),
		"threadExecutionWidth", dev.ThreadExecutionWidth())
	return d, nil
}

func (d *dispatcher) Device() device.Device {
	return d.dev
}

func (d *dispatcher) Deform(ctx context.Context, m mesh.MeshBuffers, data kernel.ShaderData) (device.Submission, error) {
	if d.released.Load() {
		return nil, common.NewDispatchError("", common.ErrReleased)
	}
	if err := ctx.Err(); err != nil {
		return nil, common.NewDispatchError("", err)
	}
	if err := m.AcquireDispatch(); err != nil {
		return nil, err
	}

	stats, passes, err := d.plan(m, data)
	if err != nil {
		m.CompleteDispatch(err)
		return nil, err
	}

	start := time.Now()
	inner, err := d.dev.Submit(passes...)
	if err != nil {
		if !errors.Is(err, common.ErrDispatch) {
			err = common.NewDispatchError("", err)
		}
		m.CompleteDispatch(err)
		return nil, err
	}
	common.Logger().Debug("deform submitted",
		"mesh", stats.Mesh,
		"vertices", stats.Vertices,
		"vertexGroups", stats.VertexGroups,
		"vertexGroupSize", stats.VertexGroupSize,
		"normalGroups", stats.NormalGroups,
		"normalGroupSize", stats.NormalGroupSize)

	outer, complete := device.NewSubmission()
	go func() {
		<-inner.Done()
		err := inner.Err()
		m.CompleteDispatch(err)

		stats.Elapsed = time.Since(start)
		stats.Err = err
		if err != nil {
			common.Logger().Warn("deform failed", "mesh", stats.Mesh, "error", err)
		}
		for _, observe := range d.observers {
			observe(stats)
		}
		complete(err)
	}()
	return outer, nil
}

func (d *dispatcher) DeformSync(ctx context.Context, m mesh.MeshBuffers, data kernel.ShaderData) error {
	sub, err := d.Deform(ctx, m, data)
	if err != nil {
		return err
	}
	return sub.Wait(ctx)
}

func (d *dispatcher) Release() {
	if d.released.Swap(true) {
		return
	}
	d.vertexKernel.Release()
	d.normalKernel.Release()
}

// plan validates the mesh buffers and builds the two passes.
func (d *dispatcher) plan(m mesh.MeshBuffers, data kernel.ShaderData) (DispatchStats, []device.Pass, error) {
	n := m.VertexCount()
	stats := DispatchStats{Mesh: m.Label(), Vertices: n}

	want := n * 12
	for _, buf := range []device.Buffer{m.VertexA(), m.VertexB(), m.Normals()} {
		if buf.Size() != want {
			return stats, nil, common.NewDispatchError("", fmt.Errorf("%w: %s is %d bytes, want %d",
				ErrBufferMismatch, buf.Label(), buf.Size(), want))
		}
	}
	if n == 0 || n%3 != 0 {
		return stats, nil, common.NewDispatchError("", fmt.Errorf("%w: %d vertices is not a whole number of triangles",
			ErrBufferMismatch, n))
	}

	stats.VertexGroupSize = d.dev.ThreadExecutionWidth()
	stats.VertexGroups = GroupCount(n, stats.VertexGroupSize)
	stats.NormalGroupSize = BestThreadGroupSize(n)
	stats.NormalGroups = n / stats.NormalGroupSize

	if limit := d.dev.MaxWorkgroups(); stats.VertexGroups > limit || stats.NormalGroups > limit {
		return stats, nil, common.NewDispatchError("", fmt.Errorf("%w: %d/%d groups exceed the device limit of %d",
			device.ErrGroupCount, stats.VertexGroups, stats.NormalGroups, limit))
	}

	passes := []device.Pass{
		{
			Label:     vertexPassLabel,
			Kernel:    d.vertexKernel,
			Buffers:   []device.Buffer{m.VertexA(), m.VertexB()},
			Uniform:   data.Bytes(),
			Groups:    stats.VertexGroups,
			GroupSize: stats.VertexGroupSize,
		},
		{
			Label:     normalPassLabel,
			Kernel:    d.normalKernel,
			Buffers:   []device.Buffer{m.VertexB(), m.VertexA(), m.Normals()},
			Groups:    stats.NormalGroups,
			GroupSize: stats.NormalGroupSize,
		},
	}
	return stats, passes, nil
}
