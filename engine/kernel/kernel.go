// Package kernel holds the deformation kernels: the WGSL source compiled by GPU devices and
// the Go mirrors executed by the CPU device, together with the parameter blob they share.
package kernel

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"text/template"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// VertexKernel is the entry point of the vertex deformation pass.
	VertexKernel = "deformVertex"

	// NormalKernel is the entry point of the normal recomputation pass.
	NormalKernel = "deformNormal"

	// ShaderDataSize is the size in bytes of the ShaderData uniform blob.
	ShaderDataSize = 32

	// DefaultAmplitude is the displacement scale used by NewShaderData.
	DefaultAmplitude float32 = 0.1

	// DefaultFrequency is the noise frequency used by NewShaderData.
	DefaultFrequency float32 = 1
)

// ErrMissingUniform is returned by a CPU kernel invoked without a ShaderData blob.
var ErrMissingUniform = errors.New("kernel: shader data uniform is missing or short")

//go:embed assets/*.wgsl
var assets embed.FS

var sources = template.Must(template.ParseFS(assets, "assets/*.wgsl"))

// sourceFiles maps each entry point to the template that declares it.
var sourceFiles = map[string]string{
	VertexKernel: "deform_vertex.wgsl",
	NormalKernel: "deform_normal.wgsl",
}

// ShaderData is the per-dispatch parameter blob. Its layout matches the WGSL uniform struct:
// a vec3 location followed by the noise amplitude and frequency, padded to 32 bytes.
type ShaderData struct {
	// Location is the reference point the deformation is keyed on.
	Location mgl32.Vec3
	// Amplitude scales the displacement along the radial direction.
	Amplitude float32
	// Frequency scales positions before sampling the noise field.
	Frequency float32

	_ [3]float32
}

// NewShaderData returns a ShaderData at location with the default amplitude and frequency.
//
// Parameters:
//   - location: the reference location
//
// Returns:
//   - ShaderData: the parameter blob
func NewShaderData(location mgl32.Vec3) ShaderData {
	return ShaderData{
		Location:  location,
		Amplitude: DefaultAmplitude,
		Frequency: DefaultFrequency,
	}
}

// Bytes returns a copy of the blob in its uniform buffer layout.
//
// Returns:
//   - []byte: ShaderDataSize bytes
func (s ShaderData) Bytes() []byte {
	return append([]byte(nil), common.StructToBytes(&s)...)
}

// DecodeShaderData reads a ShaderData back from its uniform buffer layout.
//
// Parameters:
//   - b: at least ShaderDataSize bytes
//
// Returns:
//   - ShaderData: the decoded blob
//   - error: ErrMissingUniform if b is too short
func DecodeShaderData(b []byte) (ShaderData, error) {
	var s ShaderData
	if len(b) < ShaderDataSize {
		return s, ErrMissingUniform
	}
	copy(common.StructToBytes(&s), b[:ShaderDataSize])
	return s, nil
}

// Source renders the WGSL module for the named kernel with the given workgroup size.
//
// Parameters:
//   - name: VertexKernel or NormalKernel
//   - workgroupSize: the @workgroup_size x dimension to compile
//
// Returns:
//   - string: the WGSL source
//   - error: an error if the kernel is unknown or the size is not positive
func Source(name string, workgroupSize int) (string, error) {
	file, ok := sourceFiles[name]
	if !ok {
		return "", fmt.Errorf("kernel: no WGSL source for %q", name)
	}
	if workgroupSize <= 0 {
		return "", fmt.Errorf("kernel: invalid workgroup size %d", workgroupSize)
	}
	var buf bytes.Buffer
	if err := sources.ExecuteTemplate(&buf, file, struct{ WorkgroupSize int }{workgroupSize}); err != nil {
		return "", fmt.Errorf("kernel: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Names returns the entry points of every kernel in the package.
//
// Returns:
//   - []string: the kernel names
func Names() []string {
	return []string{VertexKernel, NormalKernel}
}
