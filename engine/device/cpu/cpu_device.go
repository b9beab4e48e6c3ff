// Package cpu implements device.Device on the host CPU. Kernels are plain Go functions;
// thread groups are executed concurrently on a dynamic worker pool.
package cpu

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device"
)

const (
	// DefaultThreadExecutionWidth is the group size reported for the vertex pass.
	DefaultThreadExecutionWidth = 32

	// DefaultMaxWorkgroups matches the WebGPU default maxComputeWorkgroupsPerDimension.
	DefaultMaxWorkgroups = 65535

	// defaultQueueDepth is the number of submissions that may be pending before Submit blocks.
	defaultQueueDepth = 64

	// tasksPerWorker controls how finely the groups of one pass are split into pool tasks.
	tasksPerWorker = 4
)

// cpuBuffer is the implementation of device.Buffer for the CPU device.
type cpuBuffer struct {
	dev      *cpuDevice
	label    string
	usage    device.BufferUsage
	words    []uint32
	released atomic.Bool
}

var _ device.Buffer = &cpuBuffer{}

func (b *cpuBuffer) Label() string {
	return b.label
}

func (b *cpuBuffer) Size() int {
	b.dev.mu.RLock()
	defer b.dev.mu.RUnlock()
	return len(b.words) * 4
}

func (b *cpuBuffer) Usage() device.BufferUsage {
	return b.usage
}

func (b *cpuBuffer) Release() {
	if b.released.Swap(true) {
		return
	}
	b.dev.mu.Lock()
	b.words = nil
	b.dev.mu.Unlock()
}

// cpuKernel is the implementation of device.Kernel for the CPU device.
type cpuKernel struct {
	dev        *cpuDevice
	name       string
	fn         KernelFunc
	groupSizes []int
}

var _ device.Kernel = &cpuKernel{}

func (k *cpuKernel) Name() string {
	return k.name
}

func (k *cpuKernel) GroupSizes() []int {
	return append([]int(nil), k.groupSizes...)
}

func (k *cpuKernel) Release() {}

// job is one queued Submit call.
type job struct {
	passes   []device.Pass
	uniforms [][]byte
	complete func(error)
}

// cpuDevice is the implementation of device.Device backed by the host CPU.
type cpuDevice struct {
	// mu guards the contents of every buffer owned by the device.
	mu sync.RWMutex

	// stateMu guards released and sends on queue.
	stateMu  sync.Mutex
	released bool

	kernels              map[string]KernelFunc
	threadExecutionWidth int
	maxWorkgroups        int
	workers              int
	queueDepth           int

	pool    worker.DynamicWorkerPool
	taskID  atomic.Int64
	queue   chan job
	stopped chan struct{}
}

var _ device.Device = &cpuDevice{}

// NewDevice creates a CPU device with the given options applied. Kernels must be registered
// with WithKernel or WithKernels before they can be resolved.
//
// Parameters:
//   - options: a variadic list of CPUDeviceBuilderOption functions
//
// Returns:
//   - device.Device: the ready device
func NewDevice(options ...CPUDeviceBuilderOption) device.Device {
	d := &cpuDevice{
		kernels:              make(map[string]KernelFunc),
		threadExecutionWidth: DefaultThreadExecutionWidth,
		maxWorkgroups:        DefaultMaxWorkgroups,
		workers:              max(runtime.NumCPU()-1, 1),
		queueDepth:           defaultQueueDepth,
	}

	for _, option := range options {
		option(d)
	}

	// Initialize the pool after options so WithWorkers can override the default.
	d.pool = worker.NewDynamicWorkerPool(d.workers, d.workers*tasksPerWorker*2, time.Second)
	d.queue = make(chan job, d.queueDepth)
	d.stopped = make(chan struct{})
	go d.loop()

	common.Logger().Info("cpu device ready",
		"workers", d.workers,
		"threadExecutionWidth", d.threadExecutionWidth,
		"kernels", len(d.kernels))
	return d
}

func (d *cpuDevice) Name() string {
	return "cpu"
}

func (d *cpuDevice) ThreadExecutionWidth() int {
	return d.threadExecutionWidth
}

func (d *cpuDevice) MaxWorkgroups() int {
	return d.maxWorkgroups
}

func (d *cpuDevice) CreateBuffer(label string, usage device.BufferUsage, data []byte) (device.Buffer, error) {
	if d.isReleased() {
		return nil, common.ErrReleased
	}
	if err := device.ValidateBufferSize(len(data)); err != nil {
		return nil, fmt.Errorf("cpu: buffer %q: %w", label, err)
	}
	words := make([]uint32, len(data)/4)
	copy(common.SliceToBytes(words), data)
	return &cpuBuffer{dev: d, label: label, usage: usage, words: words}, nil
}

func (d *cpuDevice) ReadBuffer(ctx context.Context, buf device.Buffer) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := d.ownBuffer(buf)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]byte, len(b.words)*4)
	copy(out, common.SliceToBytes(b.words))
	return out, nil
}

func (d *cpuDevice) Kernel(name string, groupSizes ...int) (device.Kernel, error) {
	if d.isReleased() {
		return nil, common.ErrReleased
	}
	fn, ok := d.kernels[name]
	if !ok {
		return nil, fmt.Errorf("cpu: %w: %s", device.ErrUnknownKernel, name)
	}
	if len(groupSizes) == 0 {
		groupSizes = []int{d.threadExecutionWidth}
	}
	for _, gs := range groupSizes {
		if gs <= 0 {
			return nil, fmt.Errorf("cpu: kernel %s: %w: %d", name, device.ErrGroupSize, gs)
		}
	}
	common.Logger().Debug("cpu kernel resolved", "name", name, "groupSizes", groupSizes)
	return &cpuKernel{dev: d, name: name, fn: fn, groupSizes: append([]int(nil), groupSizes...)}, nil
}

func (d *cpuDevice) Submit(passes ...device.Pass) (device.Submission, error) {
	for _, p := range passes {
		if err := d.validate(p); err != nil {
			return nil, common.NewDispatchError(p.Label, err)
		}
	}

	uniforms := make([][]byte, len(passes))
	for i, p := range passes {
		if len(p.Uniform) > 0 {
			uniforms[i] = append([]byte(nil), p.Uniform...)
		}
	}
	sub, complete := device.NewSubmission()

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.released {
		return nil, common.ErrReleased
	}
	d.queue <- job{passes: append([]device.Pass(nil), passes...), uniforms: uniforms, complete: complete}
	return sub, nil
}

func (d *cpuDevice) Release() {
	d.stateMu.Lock()
	if d.released {
		d.stateMu.Unlock()
		return
	}
	d.released = true
	close(d.queue)
	d.stateMu.Unlock()

	<-d.stopped
	common.Logger().Info("cpu device released")
}

func (d *cpuDevice) isReleased() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.released
}

func (d *cpuDevice) ownBuffer(buf device.Buffer) (*cpuBuffer, error) {
	b, ok := buf.(*cpuBuffer)
	if !ok || b.dev != d {
		return nil, errors.New("cpu: buffer was not created by this device")
	}
	if b.released.Load() {
		return nil, fmt.Errorf("cpu: buffer %q: %w", b.label, common.ErrReleased)
	}
	return b, nil
}

func (d *cpuDevice) validate(p device.Pass) error {
	if err := device.ValidatePass(p, d.maxWorkgroups); err != nil {
		return err
	}
	if k, ok := p.Kernel.(*cpuKernel); !ok || k.dev != d {
		return fmt.Errorf("cpu: kernel %s was not resolved by this device", p.Kernel.Name())
	}
	for _, buf := range p.Buffers {
		if _, err := d.ownBuffer(buf); err != nil {
			return err
		}
	}
	return nil
}

// loop executes queued submissions one at a time, in submission order.
func (d *cpuDevice) loop() {
	defer close(d.stopped)
	for j := range d.queue {
		j.complete(d.execute(j))
	}
}

func (d *cpuDevice) execute(j job) error {
	for i, p := range j.passes {
		start := time.Now()
		if err := d.run(p, j.uniforms[i]); err != nil {
			common.Logger().Warn("cpu pass failed", "pass", p.Label, "error", err)
			return common.NewDispatchError(p.Label, err)
		}
		common.Logger().Debug("cpu pass complete",
			"pass", p.Label,
			"groups", p.Groups,
			"groupSize", p.GroupSize,
			"elapsed", time.Since(start))
	}
	return nil
}

// run executes one pass against working copies of its buffers and commits the copies only
// if every invocation succeeded.
func (d *cpuDevice) run(p device.Pass, uniform []byte) error {
	k := p.Kernel.(*cpuKernel)

	buffers := make([]*cpuBuffer, len(p.Buffers))
	bindings := make([]Binding, len(p.Buffers))
	shared := make(map[*cpuBuffer]int, len(p.Buffers))

	d.mu.RLock()
	for i, buf := range p.Buffers {
		b := buf.(*cpuBuffer)
		if b.released.Load() {
			d.mu.RUnlock()
			return fmt.Errorf("buffer %q: %w", b.label, common.ErrReleased)
		}
		buffers[i] = b
		if first, ok := shared[b]; ok {
			bindings[i] = bindings[first]
			continue
		}
		shared[b] = i
		bindings[i] = Binding{words: append([]uint32(nil), b.words...)}
	}
	d.mu.RUnlock()

	if err := d.dispatch(k, p, bindings, uniform); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for b, i := range shared {
		if b.released.Load() {
			continue
		}
		b.words = bindings[i].words
	}
	return nil
}

// dispatch runs every group of the pass on the worker pool and waits for all of them.
func (d *cpuDevice) dispatch(k *cpuKernel, p device.Pass, bindings []Binding, uniform []byte) error {
	tasks := min(p.Groups, d.workers*tasksPerWorker)
	per := (p.Groups + tasks - 1) / tasks

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for start := 0; start < p.Groups; start += per {
		end := min(start+per, p.Groups)
		wg.Add(1)
		first, last := start, end
		d.pool.SubmitTask(worker.Task{
			ID: int(d.taskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						fail(fmt.Errorf("kernel %s panicked: %v", k.name, r))
					}
				}()
				for g := first; g < last; g++ {
					for l := 0; l < p.GroupSize; l++ {
						inv := Invocation{
							GlobalID:  g*p.GroupSize + l,
							GroupID:   g,
							LocalID:   l,
							GroupSize: p.GroupSize,
							Bindings:  bindings,
							Uniform:   uniform,
						}
						if err := k.fn(inv); err != nil {
							fail(fmt.Errorf("kernel %s invocation %d: %w", k.name, inv.GlobalID, err))
							return nil, nil
						}
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return firstErr
}
