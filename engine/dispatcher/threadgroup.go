package dispatcher

// ThreadGroupCandidates are the normal-pass group sizes, largest first. Every candidate is a
// multiple of 3 so a group never splits a triangle's corners.
var ThreadGroupCandidates = []int{30, 27, 24, 21, 18, 15, 12, 9, 6}

// FallbackThreadGroupSize is used when no candidate divides the vertex count.
const FallbackThreadGroupSize = 3

// BestThreadGroupSize returns the largest candidate that evenly divides vertexCount, or
// FallbackThreadGroupSize if none does. For a flattened triangle mesh the vertex count is
// always a multiple of 3, so dispatching vertexCount/size groups covers every corner.
//
// Parameters:
//   - vertexCount: the number of corner records
//
// Returns:
//   - int: the thread group size for the normal pass
func BestThreadGroupSize(vertexCount int) int {
	if vertexCount <= 0 {
		return FallbackThreadGroupSize
	}
	for _, c := range ThreadGroupCandidates {
		if vertexCount%c == 0 {
			return c
		}
	}
	return FallbackThreadGroupSize
}

// NormalGroupSizes returns every group size BestThreadGroupSize can produce. The normal
// kernel is resolved once for all of them.
//
// Returns:
//   - []int: the candidates followed by the fallback size
func NormalGroupSizes() []int {
	return append(append([]int(nil), ThreadGroupCandidates...), FallbackThreadGroupSize)
}

// GroupCount returns the number of groups of size groupSize needed to cover n invocations.
//
// Parameters:
//   - n: the invocation count
//   - groupSize: the threads per group (must be > 0)
//
// Returns:
//   - int: ceil(n / groupSize)
func GroupCount(n, groupSize int) int {
	return (n + groupSize - 1) / groupSize
}
