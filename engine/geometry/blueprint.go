package geometry

import (
	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Face is an ordered triple of vertex indices. The order defines the triangle's winding,
// which in turn fixes the sign of its normal.
type Face [3]int

// MeshData is the flattened, renderer-ready form of a mesh. Every triangle owns its own
// three corner records, so Positions, Normals and Indices always have the same length and
// Indices is simply 0..n-1 in emission order.
type MeshData struct {
	// Positions holds one position per triangle corner.
	Positions []mgl32.Vec3

	// Normals holds one normal per triangle corner.
	Normals []mgl32.Vec3

	// Indices holds the sequential triangle-list indices.
	Indices []uint32
}

// MeshBlueprint is implemented by every procedural shape. Build produces the flattened
// corner-record triple; it must be a pure function of the blueprint's parameters.
type MeshBlueprint interface {
	// Build generates the flattened mesh for this blueprint.
	//
	// Returns:
	//   - MeshData: the positions, normals and indices
	//   - error: a *common.ConstructionError if the blueprint's parameters are invalid
	Build() (MeshData, error)
}

// VertexCount returns the number of corner records in the mesh.
//
// Returns:
//   - int: the corner record count
func (m MeshData) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount returns the number of triangles in the mesh.
//
// Returns:
//   - int: the triangle count
func (m MeshData) TriangleCount() int {
	return len(m.Indices) / 3
}

// BoundingRadius returns the maximum distance of any position from the origin.
//
// Returns:
//   - float32: the bounding sphere radius
func (m MeshData) BoundingRadius() float32 {
	var maxDistSq float32
	for _, p := range m.Positions {
		if d := p.Dot(p); d > maxDistSq {
			maxDistSq = d
		}
	}
	return math32.Sqrt(maxDistSq)
}

// PositionBytes returns a tightly packed float32 view of the positions for upload.
// The returned slice shares memory with Positions.
func (m MeshData) PositionBytes() []byte {
	return common.SliceToBytes(m.Positions)
}

// NormalBytes returns a tightly packed float32 view of the normals for upload.
// The returned slice shares memory with Normals.
func (m MeshData) NormalBytes() []byte {
	return common.SliceToBytes(m.Normals)
}

// IndexBytes returns a uint32 view of the indices for upload.
// The returned slice shares memory with Indices.
func (m MeshData) IndexBytes() []byte {
	return common.SliceToBytes(m.Indices)
}

// emitter accumulates corner records in emission order.
type emitter struct {
	data MeshData
}

func newEmitter(corners int) *emitter {
	return &emitter{data: MeshData{
		Positions: make([]mgl32.Vec3, 0, corners),
		Normals:   make([]mgl32.Vec3, 0, corners),
		Indices:   make([]uint32, 0, corners),
	}}
}

func (e *emitter) corner(position, normal mgl32.Vec3) {
	e.data.Indices = append(e.data.Indices, uint32(len(e.data.Positions)))
	e.data.Positions = append(e.data.Positions, position)
	e.data.Normals = append(e.data.Normals, normal)
}

// requirePositive validates a strictly positive, finite dimension.
func requirePositive(param string, v float32) error {
	if !common.IsFinite(v) {
		return common.NewConstructionError(param, v, "must be finite")
	}
	if v <= 0 {
		return common.NewConstructionError(param, v, "must be greater than zero")
	}
	return nil
}
