package kernel

import (
	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device/cpu"
	"github.com/go-gl/mathgl/mgl32"
)

// CPUKernels returns the Go mirrors of every WGSL kernel, keyed by entry point, ready to be
// registered with cpu.WithKernels.
//
// Returns:
//   - map[string]cpu.KernelFunc: the kernel functions
func CPUKernels() map[string]cpu.KernelFunc {
	return map[string]cpu.KernelFunc{
		VertexKernel: DeformVertex,
		NormalKernel: DeformNormal,
	}
}

func load(buf []float32, i int) mgl32.Vec3 {
	return mgl32.Vec3{buf[3*i], buf[3*i+1], buf[3*i+2]}
}

func store(buf []float32, i int, v mgl32.Vec3) {
	buf[3*i], buf[3*i+1], buf[3*i+2] = v[0], v[1], v[2]
}

// DeformVertex is the vertex pass. Bindings: 0 original positions (read), 1 deformed
// positions (write), uniform ShaderData. Invocations past the vertex count do nothing.
func DeformVertex(inv cpu.Invocation) error {
	data, err := DecodeShaderData(inv.Uniform)
	if err != nil {
		return err
	}
	original, deformed := inv.Bindings[0].Float32(), inv.Bindings[1].Float32()

	i := inv.GlobalID
	if i >= len(original)/3 {
		return nil
	}
	store(deformed, i, Displace(load(original, i), data))
	return nil
}

// DeformNormal is the normal pass. Bindings: 0 deformed positions (read), 1 original
// positions (read), 2 normals (write). Each invocation owns one corner record and writes
// the face normal of the deformed triangle that contains it.
func DeformNormal(inv cpu.Invocation) error {
	deformed, original, normals := inv.Bindings[0].Float32(), inv.Bindings[1].Float32(), inv.Bindings[2].Float32()

	i := inv.GlobalID
	base := (i / 3) * 3
	if base+2 >= len(deformed)/3 {
		return nil
	}
	store(normals, i, CornerNormal(deformed, original, i))
	return nil
}

// CornerNormal computes the normal written for corner i: the face normal of the deformed
// triangle, falling back to the undeformed face normal, then to the undeformed corner
// direction, then to +Y.
//
// Parameters:
//   - deformed: packed deformed positions
//   - original: packed undeformed positions
//   - i: the corner index
//
// Returns:
//   - mgl32.Vec3: the unit normal
func CornerNormal(deformed, original []float32, i int) mgl32.Vec3 {
	base := (i / 3) * 3
	if n, ok := common.FaceNormal(load(deformed, base), load(deformed, base+1), load(deformed, base+2)); ok {
		return n
	}
	if n, ok := common.FaceNormal(load(original, base), load(original, base+1), load(original, base+2)); ok {
		return n
	}
	return common.NormalizeOr(load(original, i), up)
}
