package geometry

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// SubdivisionScheme selects how each face is split per subdivision level.
type SubdivisionScheme int

const (
	// SchemeEdge splits every face into four by inserting normalized edge midpoints.
	// Each level multiplies the face count by 4.
	SchemeEdge SubdivisionScheme = iota

	// SchemeFaceCenter splits every face into three around its normalized centroid.
	// Each level multiplies the face count by 3.
	SchemeFaceCenter
)

// goldenRatio is t = (1 + √5) / 2, the coordinate scale of the icosahedron seed vertices.
var goldenRatio = (1 + math32.Sqrt(5)) / 2

// MaxSubdivisions is the highest subdivision level accepted. SchemeEdge at this level
// emits 20 * 4^8 faces.
const MaxSubdivisions = 8

// icosahedronFaces is the seed adjacency table of the icosahedron. The order and the
// winding of every entry are load-bearing: output is compared bit-for-bit against it.
var icosahedronFaces = [20]Face{
	{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},

	// 5 adjacent faces
	{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},

	// 5 faces around point 3
	{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},

	// 5 adjacent faces
	{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
}

// edgeSplitFaces are the local face patterns emitted per input face by SchemeEdge,
// relative to the block [v0, v1, v2, m01, m12, m20].
var edgeSplitFaces = [4]Face{{5, 0, 3}, {2, 5, 4}, {4, 5, 3}, {1, 4, 3}}

// centerSplitFaces are the local face patterns emitted per input face by SchemeFaceCenter,
// relative to the block [v0, v1, v2, c].
var centerSplitFaces = [3]Face{{0, 1, 3}, {0, 2, 3}, {1, 2, 3}}

// IcosahedronFaces returns a copy of the 20 seed faces of the icosahedron, indexing
// IcosahedronVertices in outward counter-clockwise winding.
//
// Returns:
//   - []Face: a new slice holding the seed faces
func IcosahedronFaces() []Face {
	return slices.Clone(icosahedronFaces[:])
}

// IcosahedronVertices returns the 12 seed vertices of the icosahedron, normalized to unit length.
// A new slice is returned on every call.
//
// Returns:
//   - []mgl32.Vec3: the unit seed vertices
func IcosahedronVertices() []mgl32.Vec3 {
	t := goldenRatio
	v := []mgl32.Vec3{
		{-1, t, 0}, {1, t, 0}, {-1, -t, 0}, {1, -t, 0},
		{0, -1, t}, {0, 1, t}, {0, -1, -t}, {0, 1, -t},
		{t, 0, -1}, {t, 0, 1}, {-t, 0, -1}, {-t, 0, 1},
	}
	for i := range v {
		v[i] = common.Normalize(v[i])
	}
	return v
}

// SubdivideEdges performs one edge-midpoint subdivision pass over the whole mesh.
// The input slices are never modified; a brand-new vertex and face list is returned.
// Shared edge midpoints are deliberately not deduplicated across neighbouring faces,
// so every input face contributes its own block of 6 vertices.
//
// Parameters:
//   - vertices: the current unit vertices
//   - faces: the current faces indexing into vertices
//
// Returns:
//   - []mgl32.Vec3: the new vertices (6 per input face)
//   - []Face: the new faces (4 per input face)
func SubdivideEdges(vertices []mgl32.Vec3, faces []Face) ([]mgl32.Vec3, []Face) {
	nv := make([]mgl32.Vec3, 0, len(faces)*6)
	nf := make([]Face, 0, len(faces)*len(edgeSplitFaces))
	vcount := 0
	for _, f := range faces {
		v0, v1, v2 := vertices[f[0]], vertices[f[1]], vertices[f[2]]
		nv = append(nv,
			v0, v1, v2,
			common.Normalize(v0.Add(v1)),
			common.Normalize(v1.Add(v2)),
			common.Normalize(v2.Add(v0)),
		)
		for _, local := range edgeSplitFaces {
			nf = append(nf, Face{local[0] + vcount, local[1] + vcount, local[2] + vcount})
		}
		vcount += 6
	}
	return nv, nf
}

// SubdivideFaces performs one face-centre subdivision pass over the whole mesh,
// replacing every face with three triangles fanned around its normalized centroid.
// The input slices are never modified.
//
// Parameters:
//   - vertices: the current unit vertices
//   - faces: the current faces indexing into vertices
//
// Returns:
//   - []mgl32.Vec3: the new vertices (4 per input face)
//   - []Face: the new faces (3 per input face)
func SubdivideFaces(vertices []mgl32.Vec3, faces []Face) ([]mgl32.Vec3, []Face) {
	nv := make([]mgl32.Vec3, 0, len(faces)*4)
	nf := make([]Face, 0, len(faces)*len(centerSplitFaces))
	vcount := 0
	for _, f := range faces {
		v0, v1, v2 := vertices[f[0]], vertices[f[1]], vertices[f[2]]
		c := v0.Add(v1).Add(v2).Mul(1.0 / 3.0)
		nv = append(nv, v0, v1, v2, common.Normalize(c))
		for _, local := range centerSplitFaces {
			nf = append(nf, Face{local[0] + vcount, local[1] + vcount, local[2] + vcount})
		}
		vcount += 4
	}
	return nv, nf
}

// Subdivide applies level passes of the given scheme. Level 0 returns copies of the input.
//
// Parameters:
//   - vertices: the starting unit vertices
//   - faces: the starting faces
//   - level: the number of passes to apply (must be >= 0)
//   - scheme: the subdivision scheme
//
// Returns:
//   - []mgl32.Vec3: the subdivided vertices
//   - []Face: the subdivided faces
//   - error: a *common.ConstructionError if level is negative or above MaxSubdivisions
func Subdivide(vertices []mgl32.Vec3, faces []Face, level int, scheme SubdivisionScheme) ([]mgl32.Vec3, []Face, error) {
	if level < 0 {
		return nil, nil, common.NewConstructionError("subdivisions", level, "must not be negative")
	}
	if level > MaxSubdivisions {
		return nil, nil, common.NewConstructionError("subdivisions", level, fmt.Sprintf("must not exceed %d", MaxSubdivisions))
	}
	if level == 0 {
		return slices.Clone(vertices), slices.Clone(faces), nil
	}
	pass := SubdivideEdges
	if scheme == SchemeFaceCenter {
		pass = SubdivideFaces
	}
	for ; level > 0; level-- {
		vertices, faces = pass(vertices, faces)
	}
	return vertices, faces, nil
}

// icosahedralForm is the implementation of the IcosahedralForm interface.
type icosahedralForm struct {
	radius       float32
	subdivisions int
	scheme       SubdivisionScheme
}

// IcosahedralForm is a MeshBlueprint for the icosahedron and the geodesic spheres derived from it.
// Every corner record emits the scaled position (vertex * radius) and the unit normal of the
// unscaled vertex, so the normals at subdivision 0 equal the seed directions.
type IcosahedralForm interface {
	MeshBlueprint

	// Radius returns the sphere radius the unit vertices are scaled by.
	//
	// Returns:
	//   - float32: the radius
	Radius() float32

	// Subdivisions returns the number of subdivision levels applied to the seed.
	//
	// Returns:
	//   - int: the subdivision level
	Subdivisions() int

	// Scheme returns the subdivision scheme.
	//
	// Returns:
	//   - SubdivisionScheme: the scheme used per level
	Scheme() SubdivisionScheme

	// Topology returns the unit vertices and faces after subdivision, before flattening.
	//
	// Returns:
	//   - []mgl32.Vec3: the unit vertices
	//   - []Face: the faces
	//   - error: a *common.ConstructionError if the form's parameters are invalid
	Topology() ([]mgl32.Vec3, []Face, error)
}

var _ IcosahedralForm = &icosahedralForm{}

// NewIcosahedralForm creates an IcosahedralForm with the given radius and options applied.
// Parameters are validated by Build and Topology, not here.
//
// Parameters:
//   - radius: the sphere radius
//   - options: a variadic list of FormOption functions
//
// Returns:
//   - IcosahedralForm: the configured form
func NewIcosahedralForm(radius float32, options ...FormOption) IcosahedralForm {
	f := &icosahedralForm{
		radius: radius,
		scheme: SchemeEdge,
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *icosahedralForm) Radius() float32 {
	return f.radius
}

func (f *icosahedralForm) Subdivisions() int {
	return f.subdivisions
}

func (f *icosahedralForm) Scheme() SubdivisionScheme {
	return f.scheme
}

func (f *icosahedralForm) Topology() ([]mgl32.Vec3, []Face, error) {
	if err := requirePositive("radius", f.radius); err != nil {
		return nil, nil, err
	}
	return Subdivide(IcosahedronVertices(), icosahedronFaces[:], f.subdivisions, f.scheme)
}

func (f *icosahedralForm) Build() (MeshData, error) {
	vertices, faces, err := f.Topology()
	if err != nil {
		return MeshData{}, err
	}
	e := newEmitter(len(faces) * 3)
	for _, face := range faces {
		for _, i := range face {
			v := vertices[i]
			e.corner(v.Mul(f.radius), common.Normalize(v))
		}
	}
	return e.data, nil
}
