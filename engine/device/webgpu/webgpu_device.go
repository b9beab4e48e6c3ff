// Package webgpu implements device.Device on a WebGPU adapter. Kernels are compiled from the
// WGSL sources of the kernel package, one pipeline per workgroup size.
package webgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// DefaultThreadExecutionWidth is the preferred workgroup size before clamping to the
	// adapter limits.
	DefaultThreadExecutionWidth = 64

	// uniformAlignment is the size granularity of uniform buffers.
	uniformAlignment = 16
)

// SourceFunc renders the WGSL module of a kernel for one workgroup size.
type SourceFunc func(name string, workgroupSize int) (string, error)

// gpuBuffer is the implementation of device.Buffer for the WebGPU device.
type gpuBuffer struct {
	dev      *gpuDevice
	label    string
	usage    device.BufferUsage
	size     int
	buf      *wgpu.Buffer
	released atomic.Bool
}

var _ device.Buffer = &gpuBuffer{}

func (b *gpuBuffer) Label() string {
	return b.label
}

func (b *gpuBuffer) Size() int {
	return b.size
}

func (b *gpuBuffer) Usage() device.BufferUsage {
	return b.usage
}

func (b *gpuBuffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	b.buf.Release()
}

// variant is the compiled pipeline of a kernel at one workgroup size.
type variant struct {
	module    *wgpu.ShaderModule
	bindGroup *wgpu.BindGroupLayout
	layout    *wgpu.PipelineLayout
	pipeline  *wgpu.ComputePipeline
}

func (v *variant) release() {
	if v.pipeline != nil {
		v.pipeline.Release()
	}
	if v.layout != nil {
		v.layout.Release()
	}
	if v.bindGroup != nil {
		v.bindGroup.Release()
	}
	if v.module != nil {
		v.module.Release()
	}
}

// gpuKernel is the implementation of device.Kernel for the WebGPU device.
type gpuKernel struct {
	dev        *gpuDevice
	name       string
	entries    []wgpu.BindGroupLayoutEntry
	groupSizes []int
	variants   map[int]*variant
	released   atomic.Bool
}

var _ device.Kernel = &gpuKernel{}

func (k *gpuKernel) Name() string {
	return k.name
}

func (k *gpuKernel) GroupSizes() []int {
	return append([]int(nil), k.groupSizes...)
}

func (k *gpuKernel) Release() {
	if k.released.Swap(true) {
		return
	}
	k.dev.mu.Lock()
	defer k.dev.mu.Unlock()
	for _, v := range k.variants {
		v.release()
	}
}

// gpuDevice is the implementation of device.Device backed by a WebGPU adapter.
type gpuDevice struct {
	// mu serializes every call into the WebGPU bindings.
	mu       sync.Mutex
	released bool

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	limits   wgpu.Limits

	forceFallbackAdapter bool
	threadExecutionWidth int
	source               SourceFunc

	pending sync.WaitGroup
}

var _ device.Device = &gpuDevice{}

// NewDevice requests a WebGPU adapter and device with the given options applied. The device
// is created with the WebGPU default limits, and the thread execution width is clamped to
// them.
//
// Parameters:
//   - options: a variadic list of WebGPUDeviceBuilderOption functions
//
// Returns:
//   - device.Device: the ready device
//   - error: a *common.DeviceInitError if no adapter or device could be obtained
func NewDevice(options ...WebGPUDeviceBuilderOption) (device.Device, error) {
	d := &gpuDevice{
		limits:               wgpu.DefaultLimits(),
		threadExecutionWidth: DefaultThreadExecutionWidth,
		source:               kernel.Source,
	}
	for _, option := range options {
		option(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
	})
	if err != nil {
		d.instance.Release()
		return nil, common.NewDeviceInitError("adapter", err)
	}
	d.adapter = a

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Deform Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: d.limits,
		},
	})
	if err != nil {
		d.adapter.Release()
		d.instance.Release()
		return nil, common.NewDeviceInitError("device", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	d.threadExecutionWidth = clampWidth(d.threadExecutionWidth, d.limits)

	common.Logger().Info("webgpu device ready",
		"fallbackAdapter", d.forceFallbackAdapter,
		"threadExecutionWidth", d.threadExecutionWidth,
		"maxWorkgroups", d.MaxWorkgroups())
	return d, nil
}

// clampWidth limits a requested workgroup width to what the device supports.
func clampWidth(width int, limits wgpu.Limits) int {
	width = min(width, int(limits.MaxComputeInvocationsPerWorkgroup), int(limits.MaxComputeWorkgroupSizeX))
	return max(width, 1)
}

func (d *gpuDevice) Name() string {
	return "webgpu"
}

func (d *gpuDevice) ThreadExecutionWidth() int {
	return d.threadExecutionWidth
}

func (d *gpuDevice) MaxWorkgroups() int {
	if n := int(d.limits.MaxComputeWorkgroupsPerDimension); n > 0 {
		return n
	}
	return 65535
}

func (d *gpuDevice) CreateBuffer(label string, usage device.BufferUsage, data []byte) (device.Buffer, error) {
	if err := device.ValidateBufferSize(len(data)); err != nil {
		return nil, fmt.Errorf("webgpu: buffer %q: %w", label, err)
	}

	flags := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	if usage.Has(device.BufferUsageVertex) {
		flags |= wgpu.BufferUsageVertex
	}
	if usage.Has(device.BufferUsageIndex) {
		flags |= wgpu.BufferUsageIndex
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, common.ErrReleased
	}

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: flags,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: buffer %q: %w", label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, fmt.Errorf("webgpu: buffer %q upload: %w", label, err)
	}
	return &gpuBuffer{dev: d, label: label, usage: usage, size: len(data), buf: buf}, nil
}

func (d *gpuDevice) ReadBuffer(ctx context.Context, buf device.Buffer) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := d.ownBuffer(buf)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, common.ErrReleased
	}

	size := uint64(b.size)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: readback %q: %w", b.label, err)
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: readback %q: %w", b.label, err)
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: readback %q: %w", b.label, err)
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("webgpu: readback %q: %w", b.label, err)
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("webgpu: readback %q: map failed with status %v", b.label, status)
	}

	out := make([]byte, b.size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	staging.Unmap()
	return out, nil
}

func (d *gpuDevice) Kernel(name string, groupSizes ...int) (device.Kernel, error) {
	if len(groupSizes) == 0 {
		groupSizes = []int{d.threadExecutionWidth}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, common.ErrReleased
	}

	k := &gpuKernel{
		dev:        d,
		name:       name,
		groupSizes: append([]int(nil), groupSizes...),
		variants:   make(map[int]*variant, len(groupSizes)),
	}
	for _, gs := range groupSizes {
		if _, ok := k.variants[gs]; ok {
			continue
		}
		v, entries, err := d.compile(name, gs)
		if err != nil {
			for _, built := range k.variants {
				built.release()
			}
			return nil, err
		}
		k.variants[gs] = v
		k.entries = entries
	}
	common.Logger().Debug("webgpu kernel resolved", "name", name, "groupSizes", groupSizes)
	return k, nil
}

// compile builds the pipeline for one kernel at one workgroup size. The caller holds mu.
func (d *gpuDevice) compile(name string, groupSize int) (*variant, []wgpu.BindGroupLayoutEntry, error) {
	if groupSize <= 0 || groupSize > clampWidth(groupSize, d.limits) {
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w: %d exceeds the device limits", name, device.ErrGroupSize, groupSize)
	}

	source, err := d.source(name, groupSize)
	if err != nil {
		return nil, nil, fmt.Errorf("webgpu: %w: %s: %w", device.ErrUnknownKernel, name, err)
	}
	layout, err := reflectCompute(source)
	if err != nil {
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w", name, err)
	}
	if layout.entryPoint != name {
		return nil, nil, fmt.Errorf("webgpu: kernel %s: source declares entry point %q", name, layout.entryPoint)
	}
	if layout.workgroupSize != [3]uint32{uint32(groupSize), 1, 1} {
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w: source declares %v, want %d",
			name, device.ErrGroupSize, layout.workgroupSize, groupSize)
	}

	label := fmt.Sprintf("%s/%d", name, groupSize)
	v := &variant{}
	if v.module, err = d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	}); err != nil {
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w", label, err)
	}
	if v.bindGroup, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + " Bind Group Layout",
		Entries: layout.entries,
	}); err != nil {
		v.release()
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w", label, err)
	}
	if v.layout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{v.bindGroup},
	}); err != nil {
		v.release()
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w", label, err)
	}
	if v.pipeline, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label + " Compute Pipeline",
		Layout: v.layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     v.module,
			EntryPoint: name,
		},
	}); err != nil {
		v.release()
		return nil, nil, fmt.Errorf("webgpu: kernel %s: %w", label, err)
	}
	return v, layout.entries, nil
}

// transient holds the per-submission resources released once the submission completes.
type transient struct {
	bindGroups []*wgpu.BindGroup
	uniforms   []*wgpu.Buffer
}

func (t *transient) release() {
	for _, bg := range t.bindGroups {
		bg.Release()
	}
	for _, u := range t.uniforms {
		u.Release()
	}
}

func (d *gpuDevice) Submit(passes ...device.Pass) (device.Submission, error) {
	for _, p := range passes {
		if err := d.validate(p); err != nil {
			return nil, common.NewDispatchError(p.Label, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, common.ErrReleased
	}

	labels := make([]string, len(passes))
	for i, p := range passes {
		labels[i] = p.Label
	}
	scope := newScopeErrors(labels)
	d.pushScopes()
	defer d.popScopes(scope)

	res := &transient{}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, common.NewDispatchError("", err)
	}
	defer encoder.Release()

	for _, p := range passes {
		if err := d.encode(encoder, p, res); err != nil {
			res.release()
			return nil, common.NewDispatchError(p.Label, err)
		}
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		res.release()
		return nil, common.NewDispatchError("", err)
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()

	sub, complete := device.NewSubmission()
	start := time.Now()
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.mu.Lock()
		d.device.Poll(true, nil)
		res.release()
		d.mu.Unlock()
		err := scope.err()
		if err != nil {
			common.Logger().Warn("webgpu submission failed", "passes", len(passes), "error", err)
		} else {
			common.Logger().Debug("webgpu submission complete", "passes", len(passes), "elapsed", time.Since(start))
		}
		complete(err)
	}()
	return sub, nil
}

// encode records one pass into encoder. The caller holds mu.
func (d *gpuDevice) encode(encoder *wgpu.CommandEncoder, p device.Pass, res *transient) error {
	k := p.Kernel.(*gpuKernel)
	v := k.variants[p.GroupSize]

	entries := make([]wgpu.BindGroupEntry, 0, len(p.Buffers)+1)
	for i, buf := range p.Buffers {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  buf.(*gpuBuffer).buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}
	if len(p.Uniform) > 0 {
		size := (len(p.Uniform) + uniformAlignment - 1) / uniformAlignment * uniformAlignment
		u, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: p.Label + " Uniform",
			Size:  uint64(size),
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		res.uniforms = append(res.uniforms, u)
		data := make([]byte, size)
		copy(data, p.Uniform)
		if err := d.queue.WriteBuffer(u, 0, data); err != nil {
			return err
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(len(p.Buffers)),
			Buffer:  u,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}

	bindGroup, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.Label + " Bind Group",
		Layout:  v.bindGroup,
		Entries: entries,
	})
	if err != nil {
		return err
	}
	res.bindGroups = append(res.bindGroups, bindGroup)

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(v.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32(p.Groups), 1, 1)
	pass.End()
	pass.Release()
	return nil
}

func (d *gpuDevice) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()

	d.pending.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
	common.Logger().Info("webgpu device released")
}

func (d *gpuDevice) ownBuffer(buf device.Buffer) (*gpuBuffer, error) {
	b, ok := buf.(*gpuBuffer)
	if !ok || b.dev != d {
		return nil, errors.New("webgpu: buffer was not created by this device")
	}
	if b.released.Load() {
		return nil, fmt.Errorf("webgpu: buffer %q: %w", b.label, common.ErrReleased)
	}
	return b, nil
}

// validate checks a pass against the device limits and the kernel's reflected bindings, so
// that a submitted command buffer cannot fail validation on the device.
func (d *gpuDevice) validate(p device.Pass) error {
	if err := device.ValidatePass(p, d.MaxWorkgroups()); err != nil {
		return err
	}
	k, ok := p.Kernel.(*gpuKernel)
	if !ok || k.dev != d {
		return fmt.Errorf("webgpu: kernel %s was not resolved by this device", p.Kernel.Name())
	}
	if k.released.Load() {
		return fmt.Errorf("webgpu: kernel %s: %w", k.name, common.ErrReleased)
	}

	bound := len(p.Buffers)
	if len(p.Uniform) > 0 {
		bound++
	}
	if bound != len(k.entries) {
		return fmt.Errorf("webgpu: kernel %s declares %d bindings, pass binds %d", k.name, len(k.entries), bound)
	}

	writable := make(map[*gpuBuffer]bool, len(p.Buffers))
	for i, buf := range p.Buffers {
		b, err := d.ownBuffer(buf)
		if err != nil {
			return err
		}
		t := k.entries[i].Buffer.Type
		if t == wgpu.BufferBindingTypeUniform {
			return fmt.Errorf("webgpu: kernel %s binding %d is a uniform, pass binds storage %q", k.name, i, b.label)
		}
		rw := t == wgpu.BufferBindingTypeStorage
		if prev, seen := writable[b]; seen && (prev || rw) {
			return fmt.Errorf("webgpu: buffer %q is bound twice with write access", b.label)
		}
		writable[b] = rw
	}
	if len(p.Uniform) > 0 && k.entries[len(p.Buffers)].Buffer.Type != wgpu.BufferBindingTypeUniform {
		return fmt.Errorf("webgpu: kernel %s binding %d is not a uniform", k.name, len(p.Buffers))
	}
	return nil
}
