package htm

import (
	"github.com/cznic/mathutil"
)

// Topology is a regular n-dimensional grid. It maps between a flat integer
// index and a coordinate tuple, and enumerates neighbours within an
// annular radius. Grounded on the teacher's DenseBinaryMatrix row/col
// index math (denseBinaryMatrix.go:toIndex), generalized from 2 dimensions
// to N.
type Topology struct {
	dims   []int
	strides []int
	size   int
}

// NewTopology builds a topology over the given positive dimensions. Panics
// (configuration error, caught by callers during Params.Validate) if any
// dimension is non-positive.
func NewTopology(dims []int) *Topology {
	if len(dims) == 0 {
		panic("htm: topology requires at least one dimension")
	}
	d := make([]int, len(dims))
	copy(d, dims)

	strides := make([]int, len(d))
	// Row-major: last dimension varies fastest.
	stride := 1
	for i := len(d) - 1; i >= 0; i-- {
		if d[i] <= 0 {
			panic("htm: topology dimensions must be positive")
		}
		strides[i] = stride
		stride *= d[i]
	}

	return &Topology{dims: d, strides: strides, size: stride}
}

// Dimensions returns a copy of the grid's dimension vector.
func (t *Topology) Dimensions() []int {
	out := make([]int, len(t.dims))
	copy(out, t.dims)
	return out
}

// Size is the product of the dimensions.
func (t *Topology) Size() int {
	return t.size
}

// CoordOf converts a flat index into its coordinate tuple.
func (t *Topology) CoordOf(index int) []int {
	coord := make([]int, len(t.dims))
	rem := index
	for i := 0; i < len(t.dims); i++ {
		coord[i] = rem / t.strides[i]
		rem -= coord[i] * t.strides[i]
	}
	return coord
}

// IndexOf converts a coordinate tuple into its flat index.
func (t *Topology) IndexOf(coord []int) int {
	idx := 0
	for i := 0; i < len(t.dims); i++ {
		idx += coord[i] * t.strides[i]
	}
	return idx
}

// CoordDistance is the Chebyshev distance between two coordinates on this
// grid: the maximum absolute per-axis difference.
func (t *Topology) CoordDistance(a, b []int) int {
	max := 0
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		max = mathutil.Max(max, d)
	}
	return max
}

// Neighbours enumerates the coordinates within an annular radius of coord:
// distance in (innerR, outerR], clamped to the grid bounds.
func (t *Topology) Neighbours(coord []int, outerR, innerR int) [][]int {
	n := len(t.dims)
	lo := make([]int, n)
	hi := make([]int, n)
	for i := 0; i < n; i++ {
		lo[i] = mathutil.Max(0, coord[i]-outerR)
		hi[i] = mathutil.Min(t.dims[i]-1, coord[i]+outerR)
	}

	var result [][]int
	cursor := make([]int, n)
	copy(cursor, lo)

	for {
		dist := t.CoordDistance(coord, cursor)
		if dist > innerR && dist <= outerR {
			c := make([]int, n)
			copy(c, cursor)
			result = append(result, c)
		}

		// odometer increment
		i := n - 1
		for i >= 0 {
			cursor[i]++
			if cursor[i] <= hi[i] {
				break
			}
			cursor[i] = lo[i]
			i--
		}
		if i < 0 {
			break
		}
	}

	return result
}

// neighbourIndices is a convenience over Neighbours that returns flat
// indices instead of coordinates.
func (t *Topology) neighbourIndices(index, outerR, innerR int) []int {
	coords := t.Neighbours(t.CoordOf(index), outerR, innerR)
	out := make([]int, len(coords))
	for i, c := range coords {
		out[i] = t.IndexOf(c)
	}
	return out
}
