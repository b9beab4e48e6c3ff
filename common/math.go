package common

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// degenerateSine is the squared sine of the corner angle at or below which a triangle is
// treated as degenerate. It is relative to the edge lengths, so it holds at any mesh scale.
const degenerateSine = 1e-12

// usableLength reports whether a squared length can be normalized: positive and finite.
func usableLength(lenSq float32) bool {
	return lenSq > 0 && !math32.IsInf(lenSq, 1)
}

// Normalize returns v scaled to unit length.
// A zero-length or non-finite vector is returned unchanged rather than producing NaN components.
//
// Parameters:
//   - v: the vector to normalize
//
// Returns:
//   - mgl32.Vec3: the unit-length vector, or v if its length is zero
func Normalize(v mgl32.Vec3) mgl32.Vec3 {
	lenSq := v.Dot(v)
	if !usableLength(lenSq) {
		return v
	}
	inv := 1 / math32.Sqrt(lenSq)
	return mgl32.Vec3{v[0] * inv, v[1] * inv, v[2] * inv}
}

// NormalizeOr returns v scaled to unit length, or fallback when v is zero-length or non-finite.
//
// Parameters:
//   - v: the vector to normalize
//   - fallback: the vector returned when v has no usable direction
//
// Returns:
//   - mgl32.Vec3: the unit-length vector or fallback
func NormalizeOr(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if !usableLength(v.Dot(v)) {
		return fallback
	}
	return Normalize(v)
}

// FaceNormal computes the unit normal of the triangle (a, b, c) using the cross product
// of the edges (b - a) and (c - a). Counter-clockwise winding yields the front-facing normal.
//
// Parameters:
//   - a, b, c: the triangle corners in winding order
//
// Returns:
//   - mgl32.Vec3: the unit face normal, or the zero vector for a degenerate triangle
//   - bool: false if the triangle is degenerate (zero area relative to its edges, or non-finite)
func FaceNormal(a, b, c mgl32.Vec3) (mgl32.Vec3, bool) {
	e1, e2 := b.Sub(a), c.Sub(a)
	n := e1.Cross(e2)
	lenSq := n.Dot(n)
	if !usableLength(lenSq) || lenSq <= degenerateSine*e1.Dot(e1)*e2.Dot(e2) {
		return mgl32.Vec3{}, false
	}
	return Normalize(n), true
}

// ApproxEqual reports whether a and b are component-wise within tolerance.
//
// Parameters:
//   - a, b: the vectors to compare
//   - tolerance: the maximum allowed absolute difference per component
//
// Returns:
//   - bool: true if every component differs by at most tolerance
func ApproxEqual(a, b mgl32.Vec3, tolerance float32) bool {
	for i := 0; i < 3; i++ {
		if math32.Abs(a[i]-b[i]) > tolerance {
			return false
		}
	}
	return true
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToSlice copies raw bytes read back from a device buffer into a freshly allocated
// slice of T. Trailing bytes that do not fill a whole element are ignored.
//
// Parameters:
//   - data: the raw bytes to decode
//
// Returns:
//   - []T: a new slice holding a copy of the decoded elements
func BytesToSlice[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	n := len(data) / size
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	copy(SliceToBytes(out), data[:n*size])
	return out
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}
