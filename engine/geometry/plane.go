package geometry

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// planeSnap is the fraction of a step below which a remaining strip is treated as rounding noise
// rather than a ragged final cell.
const planeSnap = 1e-4

// MaxPlaneCells is the largest number of grid cells a plane may emit, counted per axis and
// over the whole grid.
const MaxPlaneCells = 1 << 20

// planeUp is the constant normal of every plane corner.
var planeUp = mgl32.Vec3{0, 1, 0}

// planeForm is the implementation of the PlaneForm interface.
type planeForm struct {
	width, length, step float32
}

// PlaneForm is a MeshBlueprint for a flat grid in the XZ plane, swept from the origin to
// (width, length). Each grid cell emits two triangles with the constant normal (0, 1, 0).
type PlaneForm interface {
	MeshBlueprint

	// Width returns the extent along X.
	Width() float32

	// Length returns the extent along Z.
	Length() float32

	// Step returns the grid cell size.
	Step() float32
}

var _ PlaneForm = &planeForm{}

// NewPlaneForm creates a PlaneForm. Parameters are validated by Build.
//
// Parameters:
//   - width: extent along X
//   - length: extent along Z
//   - step: grid cell size
//
// Returns:
//   - PlaneForm: the configured form
func NewPlaneForm(width, length, step float32) PlaneForm {
	return &planeForm{width: width, length: length, step: step}
}

func (p *planeForm) Width() float32 {
	return p.width
}

func (p *planeForm) Length() float32 {
	return p.length
}

func (p *planeForm) Step() float32 {
	return p.step
}

func (p *planeForm) Build() (MeshData, error) {
	if err := requirePositive("width", p.width); err != nil {
		return MeshData{}, err
	}
	if err := requirePositive("length", p.length); err != nil {
		return MeshData{}, err
	}
	if err := requirePositive("step", p.step); err != nil {
		return MeshData{}, err
	}

	nx, err := cellCount("width", p.width, p.step)
	if err != nil {
		return MeshData{}, err
	}
	nz, err := cellCount("length", p.length, p.step)
	if err != nil {
		return MeshData{}, err
	}
	if nx*nz > MaxPlaneCells {
		return MeshData{}, common.NewConstructionError("step", p.step,
			fmt.Sprintf("%dx%d grid exceeds %d cells", nx, nz, MaxPlaneCells))
	}

	xs := gridLines(p.width, p.step, nx)
	zs := gridLines(p.length, p.step, nz)
	e := newEmitter((len(xs) - 1) * (len(zs) - 1) * 6)

	for zi := 1; zi < len(zs); zi++ {
		zPrev, z := zs[zi-1], zs[zi]
		for xi := 1; xi < len(xs); xi++ {
			xPrev, x := xs[xi-1], xs[xi]

			p0 := mgl32.Vec3{xPrev, 0, zPrev}
			p1 := mgl32.Vec3{xPrev, 0, z}
			p2 := mgl32.Vec3{x, 0, z}
			p3 := mgl32.Vec3{x, 0, zPrev}

			e.corner(p0, planeUp)
			e.corner(p1, planeUp)
			e.corner(p2, planeUp)

			e.corner(p0, planeUp)
			e.corner(p2, planeUp)
			e.corner(p3, planeUp)
		}
	}
	return e.data, nil
}

// cellCount returns the number of cells along one axis, at least 1. Ratios that overflow
// or exceed MaxPlaneCells are rejected.
func cellCount(param string, extent, step float32) (int, error) {
	cells := math32.Ceil(extent/step - planeSnap)
	if !(cells <= MaxPlaneCells) {
		return 0, common.NewConstructionError(param, extent,
			fmt.Sprintf("%s/step exceeds %d cells at step %v", param, MaxPlaneCells, step))
	}
	return max(int(cells), 1), nil
}

// gridLines returns the n+1 grid coordinates 0, step, 2*step, ... ending at extent.
// Coordinates are computed as i*step to avoid accumulated drift. When extent is not a
// multiple of step the final line is placed exactly at extent, closing a partial cell.
func gridLines(extent, step float32, n int) []float32 {
	lines := make([]float32, 0, n+1)
	for i := 0; i < n; i++ {
		lines = append(lines, float32(i)*step)
	}
	return append(lines, extent)
}
