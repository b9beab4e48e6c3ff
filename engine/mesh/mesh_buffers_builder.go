package mesh

import "github.com/Carmen-Shannon/oxy-geosphere/common"

// MeshBuffersBuilderOption is a functional option for configuring MeshBuffers.
type MeshBuffersBuilderOption func(*meshBuffers)

// WithLabel sets the label prefix of every buffer the mesh creates.
//
// Parameters:
//   - label: the label prefix (default "Mesh")
//
// Returns:
//   - MeshBuffersBuilderOption: option function to apply
func WithLabel(label string) MeshBuffersBuilderOption {
	return func(m *meshBuffers) {
		m.label = common.Coalesce(label, m.label)
	}
}
