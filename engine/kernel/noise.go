package kernel

import (
	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// latticeScale maps the top 24 bits of a hash onto [0, 2].
const latticeScale = 2.0 / 16777215.0

var up = mgl32.Vec3{0, 1, 0}

// Hash is a PCG-style 32-bit integer hash. It is identical to the WGSL hash function.
//
// Parameters:
//   - x: the value to hash
//
// Returns:
//   - uint32: the hashed value
func Hash(x uint32) uint32 {
	s := x*747796405 + 2891336453
	w := ((s >> ((s >> 28) + 4)) ^ s) * 277803737
	return (w >> 22) ^ w
}

// lattice maps an integer cell corner to a pseudo-random value in [-1, 1].
func lattice(x, y, z int32) float32 {
	h := Hash(uint32(x) ^ Hash(uint32(y)^Hash(uint32(z))))
	return float32(h>>8)*latticeScale - 1
}

func lerp(a, b, t float32) float32 {
	return a*(1-t) + b*t
}

// ValueNoise samples smooth 3-D value noise at p. The result lies in [-1, 1] and is exactly
// the lattice value at integer coordinates.
//
// Parameters:
//   - p: the sample position
//
// Returns:
//   - float32: the noise value
func ValueNoise(p mgl32.Vec3) float32 {
	fx, fy, fz := math32.Floor(p[0]), math32.Floor(p[1]), math32.Floor(p[2])
	x, y, z := int32(fx), int32(fy), int32(fz)
	tx, ty, tz := p[0]-fx, p[1]-fy, p[2]-fz
	ux, uy, uz := tx*tx*(3-2*tx), ty*ty*(3-2*ty), tz*tz*(3-2*tz)

	x00 := lerp(lattice(x, y, z), lattice(x+1, y, z), ux)
	x10 := lerp(lattice(x, y+1, z), lattice(x+1, y+1, z), ux)
	x01 := lerp(lattice(x, y, z+1), lattice(x+1, y, z+1), ux)
	x11 := lerp(lattice(x, y+1, z+1), lattice(x+1, y+1, z+1), ux)

	return lerp(lerp(x00, x10, uy), lerp(x01, x11, uy), uz)
}

// Displace moves p along the direction away from the reference location by the noise
// value sampled at p*Frequency + Location, scaled by Amplitude. A point at the location
// itself is moved along +Y.
//
// Parameters:
//   - p: the undeformed position
//   - data: the deformation parameters
//
// Returns:
//   - mgl32.Vec3: the deformed position
func Displace(p mgl32.Vec3, data ShaderData) mgl32.Vec3 {
	dir := common.NormalizeOr(p.Sub(data.Location), up)
	n := ValueNoise(p.Mul(data.Frequency).Add(data.Location))
	return p.Add(dir.Mul(data.Amplitude * n))
}
