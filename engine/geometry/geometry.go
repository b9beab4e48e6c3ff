// Package geometry builds procedural meshes in the flattened corner-record layout: one
// position, normal and index per triangle corner, with no vertex welding.
package geometry

// FormOption is a functional option for configuring an IcosahedralForm via NewIcosahedralForm.
type FormOption func(*icosahedralForm)

// WithSubdivisions is an option builder that sets the number of subdivision levels.
//
// Parameters:
//   - level: the subdivision level (validated at Build time, 0 through MaxSubdivisions)
//
// Returns:
//   - FormOption: a function that applies the subdivision level to a form
func WithSubdivisions(level int) FormOption {
	return func(f *icosahedralForm) {
		f.subdivisions = level
	}
}

// WithSubdivisionScheme is an option builder that selects the per-level subdivision scheme.
// The default is SchemeEdge.
//
// Parameters:
//   - scheme: the subdivision scheme
//
// Returns:
//   - FormOption: a function that applies the scheme to a form
func WithSubdivisionScheme(scheme SubdivisionScheme) FormOption {
	return func(f *icosahedralForm) {
		f.scheme = scheme
	}
}

// BuildIcosahedron builds the 20-face icosahedron scaled to radius.
//
// Parameters:
//   - radius: the circumscribed radius (must be > 0)
//
// Returns:
//   - MeshData: 60 corner records
//   - error: a *common.ConstructionError for an invalid radius
func BuildIcosahedron(radius float32) (MeshData, error) {
	return NewIcosahedralForm(radius).Build()
}

// BuildGeosphere builds a geodesic sphere by subdividing the icosahedron.
// With the default edge scheme the result has 20 * 4^subdivisions * 3 corner records.
//
// Parameters:
//   - radius: the sphere radius (must be > 0)
//   - subdivisions: the subdivision level (must be >= 0)
//   - options: optional FormOption overrides (e.g. WithSubdivisionScheme)
//
// Returns:
//   - MeshData: the flattened geosphere
//   - error: a *common.ConstructionError for invalid parameters
func BuildGeosphere(radius float32, subdivisions int, options ...FormOption) (MeshData, error) {
	opts := append([]FormOption{WithSubdivisions(subdivisions)}, options...)
	return NewIcosahedralForm(radius, opts...).Build()
}

// BuildPlane builds a flat grid in the XZ plane from the origin to (width, length).
//
// Parameters:
//   - width: extent along X (must be > 0)
//   - length: extent along Z (must be > 0)
//   - step: grid cell size (must be > 0)
//
// Returns:
//   - MeshData: 6 corner records per grid cell
//   - error: a *common.ConstructionError for invalid parameters
func BuildPlane(width, length, step float32) (MeshData, error) {
	return NewPlaneForm(width, length, step).Build()
}
