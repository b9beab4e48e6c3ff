// Package mesh owns the device buffers of a deformable mesh: the vertex buffer pair the
// deformation ping-pongs between, the normal buffer and the index buffer.
package mesh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/device"
	"github.com/Carmen-Shannon/oxy-geosphere/engine/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// vertexStride is the packed size of one position or normal.
const vertexStride = 12

// meshBuffers is the implementation of the MeshBuffers interface.
type meshBuffers struct {
	mu sync.RWMutex

	dev         device.Device
	label       string
	vertexCount int

	// vertex holds the two position buffers; vertex[src] is buffer A, vertex[1-src] is buffer B.
	vertex   [2]device.Buffer
	src      int
	deformed bool

	normals device.Buffer
	indices device.Buffer

	inFlight atomic.Bool
	released atomic.Bool
}

// MeshBuffers is the device-resident form of a mesh. It exclusively owns its buffers; a
// dispatcher borrows them between AcquireDispatch and CompleteDispatch.
//
// Buffer A is the deformation input and buffer B its output. Both start with the uploaded
// positions, so B is well defined before the first dispatch.
type MeshBuffers interface {
	// Label returns the label prefix used for the mesh's buffers.
	Label() string

	// VertexCount returns the number of corner records.
	VertexCount() int

	// VertexA returns the buffer currently read by the deformation pass.
	VertexA() device.Buffer

	// VertexB returns the buffer currently written by the deformation pass.
	VertexB() device.Buffer

	// Normals returns the normal buffer, one normal per corner record.
	Normals() device.Buffer

	// Indices returns the index buffer.
	Indices() device.Buffer

	// Current returns the vertex buffer holding the most recently written positions:
	// B after a successful dispatch, A before the first one or right after a Swap.
	Current() device.Buffer

	// Swap exchanges the roles of A and B so the next deformation reads the last result.
	//
	// Returns:
	//   - error: a *common.DispatchError wrapping common.ErrMeshBusy while a dispatch is in
	//     flight, or common.ErrReleased
	Swap() error

	// AcquireDispatch marks the mesh as having a dispatch in flight.
	//
	// Returns:
	//   - error: a *common.DispatchError wrapping common.ErrMeshBusy if a dispatch is already
	//     in flight, or common.ErrReleased
	AcquireDispatch() error

	// CompleteDispatch clears the in-flight mark. A nil err records that B now holds the
	// deformed positions.
	//
	// Parameters:
	//   - err: the dispatch result
	CompleteDispatch(err error)

	// ReadPositions downloads the positions of Current().
	//
	// Parameters:
	//   - ctx: bounds the download
	//
	// Returns:
	//   - []mgl32.Vec3: the positions
	//   - error: a device read error
	ReadPositions(ctx context.Context) ([]mgl32.Vec3, error)

	// ReadNormals downloads the normal buffer.
	//
	// Parameters:
	//   - ctx: bounds the download
	//
	// Returns:
	//   - []mgl32.Vec3: the normals
	//   - error: a device read error
	ReadNormals(ctx context.Context) ([]mgl32.Vec3, error)

	// Snapshot downloads the current positions, the normals and the indices.
	//
	// Parameters:
	//   - ctx: bounds the download
	//
	// Returns:
	//   - geometry.MeshData: the downloaded mesh
	//   - error: a device read error
	Snapshot(ctx context.Context) (geometry.MeshData, error)

	// Release frees every buffer. The mesh must not be used afterward.
	Release()
}

var _ MeshBuffers = &meshBuffers{}

// NewMeshBuffers uploads data to dev: positions into both vertex buffers, the normals and
// the indices. Any buffer already created is released if a later upload fails.
//
// Parameters:
//   - dev: the device to allocate on
//   - data: the flattened mesh
//   - options: a variadic list of MeshBuffersBuilderOption functions
//
// Returns:
//   - MeshBuffers: the uploaded mesh
//   - error: a *common.ConstructionError for inconsistent data, or a device allocation error
func NewMeshBuffers(dev device.Device, data geometry.MeshData, options ...MeshBuffersBuilderOption) (MeshBuffers, error) {
	m := &meshBuffers{
		dev:   dev,
		label: "Mesh",
	}
	for _, option := range options {
		option(m)
	}

	n := data.VertexCount()
	if n == 0 || n%3 != 0 {
		return nil, common.NewConstructionError("vertexCount", n, "must be a positive multiple of 3")
	}
	if len(data.Normals) != n || len(data.Indices) != n {
		return nil, common.NewConstructionError("normals/indices",
			fmt.Sprintf("%d/%d", len(data.Normals), len(data.Indices)),
			fmt.Sprintf("must both match the %d positions", n))
	}
	m.vertexCount = n

	var created []device.Buffer
	create := func(suffix string, usage device.BufferUsage, bytes []byte) (device.Buffer, error) {
		buf, err := dev.CreateBuffer(m.label+" "+suffix, usage, bytes)
		if err != nil {
			for _, b := range created {
				b.Release()
			}
			return nil, fmt.Errorf("mesh %s: create %s buffer: %w", m.label, suffix, err)
		}
		created = append(created, buf)
		return buf, nil
	}

	vertexUsage := device.BufferUsageStorage | device.BufferUsageVertex
	var err error
	if m.vertex[0], err = create("Vertex A", vertexUsage, data.PositionBytes()); err != nil {
		return nil, err
	}
	if m.vertex[1], err = create("Vertex B", vertexUsage, data.PositionBytes()); err != nil {
		return nil, err
	}
	if m.normals, err = create("Normals", vertexUsage, data.NormalBytes()); err != nil {
		return nil, err
	}
	if m.indices, err = create("Indices", device.BufferUsageIndex|device.BufferUsageStorage, data.IndexBytes()); err != nil {
		return nil, err
	}

	common.Logger().Debug("mesh uploaded", "label", m.label, "vertices", n, "device", dev.Name())
	return m, nil
}

func (m *meshBuffers) Label() string {
	return m.label
}

func (m *meshBuffers) VertexCount() int {
	return m.vertexCount
}

func (m *meshBuffers) VertexA() device.Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vertex[m.src]
}

func (m *meshBuffers) VertexB() device.Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vertex[1-m.src]
}

func (m *meshBuffers) Normals() device.Buffer {
	return m.normals
}

func (m *meshBuffers) Indices() device.Buffer {
	return m.indices
}

func (m *meshBuffers) Current() device.Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.deformed {
		return m.vertex[1-m.src]
	}
	return m.vertex[m.src]
}

func (m *meshBuffers) Swap() error {
	if err := m.AcquireDispatch(); err != nil {
		return err
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.src = 1 - m.src
	m.deformed = false
	return nil
}

func (m *meshBuffers) AcquireDispatch() error {
	if m.released.Load() {
		return common.NewDispatchError("", fmt.Errorf("mesh %s: %w", m.label, common.ErrReleased))
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return common.NewDispatchError("", fmt.Errorf("mesh %s: %w", m.label, common.ErrMeshBusy))
	}
	return nil
}

func (m *meshBuffers) CompleteDispatch(err error) {
	if err == nil {
		m.mu.Lock()
		m.deformed = true
		m.mu.Unlock()
	}
	m.inFlight.Store(false)
}

func (m *meshBuffers) ReadPositions(ctx context.Context) ([]mgl32.Vec3, error) {
	return m.readVec3(ctx, m.Current())
}

func (m *meshBuffers) ReadNormals(ctx context.Context) ([]mgl32.Vec3, error) {
	return m.readVec3(ctx, m.normals)
}

func (m *meshBuffers) Snapshot(ctx context.Context) (geometry.MeshData, error) {
	positions, err := m.ReadPositions(ctx)
	if err != nil {
		return geometry.MeshData{}, err
	}
	normals, err := m.ReadNormals(ctx)
	if err != nil {
		return geometry.MeshData{}, err
	}
	raw, err := m.dev.ReadBuffer(ctx, m.indices)
	if err != nil {
		return geometry.MeshData{}, fmt.Errorf("mesh %s: read indices: %w", m.label, err)
	}
	return geometry.MeshData{
		Positions: positions,
		Normals:   normals,
		Indices:   common.BytesToSlice[uint32](raw),
	}, nil
}

func (m *meshBuffers) Release() {
	if m.released.Swap(true) {
		return
	}
	for _, b := range []device.Buffer{m.vertex[0], m.vertex[1], m.normals, m.indices} {
		if b != nil {
			b.Release()
		}
	}
	common.Logger().Debug("mesh released", "label", m.label)
}

func (m *meshBuffers) readVec3(ctx context.Context, buf device.Buffer) ([]mgl32.Vec3, error) {
	raw, err := m.dev.ReadBuffer(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("mesh %s: read %s: %w", m.label, buf.Label(), err)
	}
	if len(raw) != m.vertexCount*vertexStride {
		return nil, fmt.Errorf("mesh %s: read %s: got %d bytes, want %d", m.label, buf.Label(), len(raw), m.vertexCount*vertexStride)
	}
	return common.BytesToSlice[mgl32.Vec3](raw), nil
}
