package cpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// addOne writes binding1[i] = binding0[i] + 1.
func addOne(inv Invocation) error {
	src, dst := inv.Bindings[0].Float32(), inv.Bindings[1].Float32()
	if inv.GlobalID >= len(src) {
		return nil
	}
	dst[inv.GlobalID] = src[inv.GlobalID] + 1
	return nil
}

// double writes binding1[i] = binding0[i] * 2.
func double(inv Invocation) error {
	src, dst := inv.Bindings[0].Float32(), inv.Bindings[1].Float32()
	if inv.GlobalID >= len(src) {
		return nil
	}
	dst[inv.GlobalID] = src[inv.GlobalID] * 2
	return nil
}

// scale writes binding1[i] = binding0[i] * uniform[0].
func scale(inv Invocation) error {
	src, dst := inv.Bindings[0].Float32(), inv.Bindings[1].Float32()
	k := common.BytesToSlice[float32](inv.Uniform)[0]
	if inv.GlobalID < len(src) {
		dst[inv.GlobalID] = src[inv.GlobalID] * k
	}
	return nil
}

// failing writes like double but fails on invocation 5.
func failing(inv Invocation) error {
	if inv.GlobalID == 5 {
		return errBoom
	}
	return double(inv)
}

func panicking(inv Invocation) error {
	if inv.GlobalID == 3 {
		panic("index out of range")
	}
	return double(inv)
}

func newTestDevice(t *testing.T, options ...CPUDeviceBuilderOption) device.Device {
	t.Helper()
	opts := append([]CPUDeviceBuilderOption{
		WithKernel("addOne", addOne),
		WithKernel("double", double),
		WithKernel("scale", scale),
		WithKernel("failing", failing),
		WithKernel("panicking", panicking),
		WithWorkers(4),
	}, options...)
	d := NewDevice(opts...)
	t.Cleanup(d.Release)
	return d
}

func floatBuffer(t *testing.T, d device.Device, label string, values []float32) device.Buffer {
	t.Helper()
	buf, err := d.CreateBuffer(label, device.BufferUsageStorage, common.SliceToBytes(values))
	require.NoError(t, err)
	return buf
}

func readFloats(t *testing.T, d device.Device, buf device.Buffer) []float32 {
	t.Helper()
	raw, err := d.ReadBuffer(context.Background(), buf)
	require.NoError(t, err)
	return common.BytesToSlice[float32](raw)
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestCPUDevice_Defaults(t *testing.T) {
	d := newTestDevice(t)
	assert.Equal(t, "cpu", d.Name())
	assert.Equal(t, DefaultThreadExecutionWidth, d.ThreadExecutionWidth())
	assert.Equal(t, DefaultMaxWorkgroups, d.MaxWorkgroups())
}

func TestCPUDevice_CreateBufferRejectsBadSizes(t *testing.T) {
	d := newTestDevice(t)
	_, err := d.CreateBuffer("empty", device.BufferUsageStorage, nil)
	assert.ErrorIs(t, err, device.ErrBufferSize)
	_, err = d.CreateBuffer("odd", device.BufferUsageStorage, make([]byte, 6))
	assert.ErrorIs(t, err, device.ErrBufferSize)
}

func TestCPUDevice_BufferRoundTrip(t *testing.T) {
	d := newTestDevice(t)
	buf := floatBuffer(t, d, "ramp", ramp(10))
	assert.Equal(t, 40, buf.Size())
	assert.Equal(t, "ramp", buf.Label())
	assert.True(t, buf.Usage().Has(device.BufferUsageStorage))
	assert.Equal(t, ramp(10), readFloats(t, d, buf))
}

func TestCPUDevice_UnknownKernel(t *testing.T) {
	d := newTestDevice(t)
	_, err := d.Kernel("missing")
	assert.ErrorIs(t, err, device.ErrUnknownKernel)
}

func TestCPUDevice_KernelDefaultsToExecutionWidth(t *testing.T) {
	d := newTestDevice(t, WithThreadExecutionWidth(8))
	k, err := d.Kernel("double")
	require.NoError(t, err)
	assert.Equal(t, []int{8}, k.GroupSizes())
	assert.Equal(t, "double", k.Name())
}

func TestCPUDevice_SubmitRunsEveryInvocation(t *testing.T) {
	d := newTestDevice(t)
	k, err := d.Kernel("double", 4)
	require.NoError(t, err)

	src := floatBuffer(t, d, "src", ramp(37))
	dst := floatBuffer(t, d, "dst", make([]float32, 37))

	sub, err := d.Submit(device.Pass{Label: "double", Kernel: k, Buffers: []device.Buffer{src, dst}, Groups: 10, GroupSize: 4})
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))

	got := readFloats(t, d, dst)
	for i, v := range got {
		assert.Equal(t, float32(i*2), v, "element %d", i)
	}
}

func TestCPUDevice_PassesObservePriorPasses(t *testing.T) {
	d := newTestDevice(t)
	add, err := d.Kernel("addOne", 8)
	require.NoError(t, err)
	dbl, err := d.Kernel("double", 8)
	require.NoError(t, err)

	a := floatBuffer(t, d, "a", ramp(64))
	b := floatBuffer(t, d, "b", make([]float32, 64))
	c := floatBuffer(t, d, "c", make([]float32, 64))

	sub, err := d.Submit(
		device.Pass{Label: "add", Kernel: add, Buffers: []device.Buffer{a, b}, Groups: 8, GroupSize: 8},
		device.Pass{Label: "double", Kernel: dbl, Buffers: []device.Buffer{b, c}, Groups: 8, GroupSize: 8},
	)
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))

	for i, v := range readFloats(t, d, c) {
		assert.Equal(t, float32((i+1)*2), v, "element %d", i)
	}
}

func TestCPUDevice_UniformIsCopiedAtSubmit(t *testing.T) {
	d := newTestDevice(t)
	k, err := d.Kernel("scale", 4)
	require.NoError(t, err)

	src := floatBuffer(t, d, "src", ramp(8))
	dst := floatBuffer(t, d, "dst", make([]float32, 8))
	factor := []float32{3}
	uniform := common.SliceToBytes(factor)

	sub, err := d.Submit(device.Pass{Label: "scale", Kernel: k, Buffers: []device.Buffer{src, dst}, Uniform: uniform, Groups: 2, GroupSize: 4})
	require.NoError(t, err)
	factor[0] = 100
	require.NoError(t, sub.Wait(context.Background()))

	assert.Equal(t, []float32{0, 3, 6, 9, 12, 15, 18, 21}, readFloats(t, d, dst))
}

func TestCPUDevice_FailedPassLeavesOutputUntouched(t *testing.T) {
	d := newTestDevice(t)
	add, err := d.Kernel("addOne", 4)
	require.NoError(t, err)
	bad, err := d.Kernel("failing", 4)
	require.NoError(t, err)

	a := floatBuffer(t, d, "a", ramp(16))
	b := floatBuffer(t, d, "b", make([]float32, 16))
	c := floatBuffer(t, d, "c", ramp(16))

	sub, err := d.Submit(
		device.Pass{Label: "add", Kernel: add, Buffers: []device.Buffer{a, b}, Groups: 4, GroupSize: 4},
		device.Pass{Label: "bad", Kernel: bad, Buffers: []device.Buffer{b, c}, Groups: 4, GroupSize: 4},
	)
	require.NoError(t, err)
	err = sub.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDispatch)
	assert.ErrorIs(t, err, errBoom)

	var de *common.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad", de.Pass)

	// The first pass committed, the failing one did not.
	for i, v := range readFloats(t, d, b) {
		assert.Equal(t, float32(i+1), v)
	}
	assert.Equal(t, ramp(16), readFloats(t, d, c))
}

func TestCPUDevice_PanickingKernelFailsPass(t *testing.T) {
	d := newTestDevice(t)
	k, err := d.Kernel("panicking", 4)
	require.NoError(t, err)

	src := floatBuffer(t, d, "src", ramp(8))
	dst := floatBuffer(t, d, "dst", make([]float32, 8))

	sub, err := d.Submit(device.Pass{Label: "panic", Kernel: k, Buffers: []device.Buffer{src, dst}, Groups: 2, GroupSize: 4})
	require.NoError(t, err)
	err = sub.Wait(context.Background())
	assert.ErrorIs(t, err, common.ErrDispatch)
	assert.Equal(t, make([]float32, 8), readFloats(t, d, dst))
}

func TestCPUDevice_SubmitValidation(t *testing.T) {
	d := newTestDevice(t, WithMaxWorkgroups(16))
	k, err := d.Kernel("double", 4)
	require.NoError(t, err)
	buf := floatBuffer(t, d, "buf", ramp(4))

	cases := []struct {
		name string
		pass device.Pass
		want error
	}{
		{"no kernel", device.Pass{Buffers: []device.Buffer{buf}, Groups: 1, GroupSize: 4}, device.ErrNoKernel},
		{"no buffers", device.Pass{Kernel: k, Groups: 1, GroupSize: 4}, device.ErrNoBuffers},
		{"zero groups", device.Pass{Kernel: k, Buffers: []device.Buffer{buf}, Groups: 0, GroupSize: 4}, device.ErrGroupCount},
		{"too many groups", device.Pass{Kernel: k, Buffers: []device.Buffer{buf}, Groups: 17, GroupSize: 4}, device.ErrGroupCount},
		{"unresolved group size", device.Pass{Kernel: k, Buffers: []device.Buffer{buf}, Groups: 1, GroupSize: 3}, device.ErrGroupSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, err := d.Submit(tc.pass)
			assert.Nil(t, sub)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, common.ErrDispatch)
		})
	}
}

func TestCPUDevice_RejectsForeignResources(t *testing.T) {
	d := newTestDevice(t)
	other := newTestDevice(t)

	k, err := d.Kernel("double", 4)
	require.NoError(t, err)
	foreign := floatBuffer(t, other, "foreign", ramp(4))

	_, err = d.Submit(device.Pass{Kernel: k, Buffers: []device.Buffer{foreign}, Groups: 1, GroupSize: 4})
	assert.ErrorIs(t, err, common.ErrDispatch)

	_, err = d.ReadBuffer(context.Background(), foreign)
	assert.Error(t, err)
}

func TestCPUDevice_ReleasedBuffer(t *testing.T) {
	d := newTestDevice(t)
	buf := floatBuffer(t, d, "buf", ramp(4))
	buf.Release()
	buf.Release()

	_, err := d.ReadBuffer(context.Background(), buf)
	assert.ErrorIs(t, err, common.ErrReleased)
}

func TestCPUDevice_ReleasedDevice(t *testing.T) {
	d := NewDevice(WithKernel("double", double))
	k, err := d.Kernel("double", 4)
	require.NoError(t, err)
	buf, err := d.CreateBuffer("buf", device.BufferUsageStorage, make([]byte, 16))
	require.NoError(t, err)

	d.Release()
	d.Release()

	_, err = d.Submit(device.Pass{Kernel: k, Buffers: []device.Buffer{buf}, Groups: 1, GroupSize: 4})
	assert.ErrorIs(t, err, common.ErrReleased)
	_, err = d.CreateBuffer("late", device.BufferUsageStorage, make([]byte, 4))
	assert.ErrorIs(t, err, common.ErrReleased)
	_, err = d.Kernel("double")
	assert.ErrorIs(t, err, common.ErrReleased)
}

func TestCPUDevice_SubmissionsRunInOrder(t *testing.T) {
	d := newTestDevice(t)
	add, err := d.Kernel("addOne", 4)
	require.NoError(t, err)

	a := floatBuffer(t, d, "a", make([]float32, 4))
	b := floatBuffer(t, d, "b", make([]float32, 4))

	var last device.Submission
	for i := 0; i < 10; i++ {
		src, dst := a, b
		if i%2 == 1 {
			src, dst = b, a
		}
		last, err = d.Submit(device.Pass{Kernel: add, Buffers: []device.Buffer{src, dst}, Groups: 1, GroupSize: 4})
		require.NoError(t, err)
	}
	require.NoError(t, last.Wait(context.Background()))
	assert.Equal(t, []float32{10, 10, 10, 10}, readFloats(t, d, a))
}

func TestSubmission_WaitHonoursContext(t *testing.T) {
	sub, complete := device.NewSubmission()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, sub.Wait(ctx), context.DeadlineExceeded)
	assert.Nil(t, sub.Err())

	complete(errBoom)
	complete(nil)
	<-sub.Done()
	assert.ErrorIs(t, sub.Wait(context.Background()), errBoom)
	assert.NoError(t, device.Completed(nil).Wait(context.Background()))
}
