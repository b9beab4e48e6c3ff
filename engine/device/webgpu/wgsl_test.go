package webgpu

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-geosphere/engine/kernel"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflectCompute_VertexKernel(t *testing.T) {
	src, err := kernel.Source(kernel.VertexKernel, 64)
	require.NoError(t, err)

	layout, err := reflectCompute(src)
	require.NoError(t, err)

	assert.Equal(t, kernel.VertexKernel, layout.entryPoint)
	assert.Equal(t, [3]uint32{64, 1, 1}, layout.workgroupSize)
	assert.Equal(t, []string{"original", "deformed", "params"}, layout.names)
	require.Len(t, layout.entries, 3)
	assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, layout.entries[0].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, layout.entries[1].Buffer.Type)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, layout.entries[2].Buffer.Type)
	for _, e := range layout.entries {
		assert.Equal(t, wgpu.ShaderStageCompute, e.Visibility)
	}
}

func TestReflectCompute_NormalKernel(t *testing.T) {
	src, err := kernel.Source(kernel.NormalKernel, 27)
	require.NoError(t, err)

	layout, err := reflectCompute(src)
	require.NoError(t, err)

	assert.Equal(t, kernel.NormalKernel, layout.entryPoint)
	assert.Equal(t, [3]uint32{27, 1, 1}, layout.workgroupSize)
	assert.Equal(t, []string{"deformed", "original", "normals"}, layout.names)
	assert.Equal(t, wgpu.BufferBindingTypeStorage, layout.entries[2].Buffer.Type)
}

func TestReflectCompute_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{
			name:   "no entry point",
			source: `@group(0) @binding(0) var<storage, read> a: array<f32>;`,
		},
		{
			name: "second group",
			source: `@group(1) @binding(0) var<storage, read> a: array<f32>;
@compute @workgroup_size(8) fn main() {}`,
		},
		{
			name: "gap in bindings",
			source: `@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(2) var<storage, read_write> b: array<f32>;
@compute @workgroup_size(8) fn main() {}`,
		},
		{
			name: "texture binding",
			source: `@group(0) @binding(0) var tex: texture_2d<f32>;
@compute @workgroup_size(8) fn main() {}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reflectCompute(tt.source)
			assert.Error(t, err)
		})
	}
}

func TestParseWorkgroupSize(t *testing.T) {
	assert.Equal(t, [3]uint32{1, 1, 1}, parseWorkgroupSize("fn main() {}"))
	assert.Equal(t, [3]uint32{8, 1, 1}, parseWorkgroupSize("@compute @workgroup_size(8) fn main() {}"))
	assert.Equal(t, [3]uint32{8, 4, 2}, parseWorkgroupSize("@compute @workgroup_size( 8, 4, 2 ) fn main() {}"))
	assert.Equal(t, [3]uint32{16, 1, 1},
		parseWorkgroupSize("// @workgroup_size(4)\n/* @workgroup_size(2) */ @compute @workgroup_size(16) fn main() {}"))
}

func TestStripComments(t *testing.T) {
	src := "a /* outer /* inner */ still */ b // tail\nc"
	assert.Equal(t, "a  b \nc\n", stripComments(src))
}

func TestClampWidth(t *testing.T) {
	limits := wgpu.DefaultLimits()
	limits.MaxComputeInvocationsPerWorkgroup = 256
	limits.MaxComputeWorkgroupSizeX = 128

	assert.Equal(t, 64, clampWidth(64, limits))
	assert.Equal(t, 128, clampWidth(512, limits))
	assert.Equal(t, 1, clampWidth(0, limits))
}

func TestBuilderOptions(t *testing.T) {
	d := &gpuDevice{threadExecutionWidth: DefaultThreadExecutionWidth}
	called := false
	for _, opt := range []WebGPUDeviceBuilderOption{
		WithForceFallbackAdapter(true),
		WithThreadExecutionWidth(32),
		WithThreadExecutionWidth(-1),
		WithSource(func(string, int) (string, error) { called = true; return "", nil }),
		WithSource(nil),
	} {
		opt(d)
	}
	assert.True(t, d.forceFallbackAdapter)
	assert.Equal(t, 32, d.threadExecutionWidth)
	_, _ = d.source("x", 1)
	assert.True(t, called)
}
