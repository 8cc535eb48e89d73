package tensor

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Index is a shape together with per-dimension coordinates in range. The
// flat encoding is row-major: the last dimension varies fastest.
type Index struct {
	shape  Shape
	coords []int
}

// NewIndex returns an Index with the given coordinates. Panics if any
// coordinate is out of range.
func NewIndex(shape Shape, coords ...int) Index {
	if len(coords) != shape.DimensionCount() {
		panic(fmt.Sprintf("tensor: %d coordinates for %d dimensions", len(coords), shape.DimensionCount()))
	}
	for d, c := range coords {
		if c < 0 || c >= shape.Dim(d) {
			panic(fmt.Sprintf("tensor: coordinate %d out of range for dimension %d of size %d", c, d, shape.Dim(d)))
		}
	}
	return Index{shape: shape, coords: slices.Clone(coords)}
}

// IndexFromFlat decodes a row-major flat index.
func IndexFromFlat(shape Shape, flat int) Index {
	if flat < 0 || flat >= shape.ValueCount() {
		panic(fmt.Sprintf("tensor: flat index %d out of range for shape %v", flat, shape))
	}
	coords := make([]int, shape.DimensionCount())
	for d := shape.DimensionCount() - 1; d >= 0; d-- {
		coords[d] = flat % shape.Dim(d)
		flat /= shape.Dim(d)
	}
	return Index{shape: shape, coords: coords}
}

// Shape returns the index's shape.
func (i Index) Shape() Shape {
	return i.shape
}

// Coord returns the coordinate of dimension d.
func (i Index) Coord(d int) int {
	return i.coords[d]
}

// Coords returns a copy of the coordinates.
func (i Index) Coords() []int {
	return slices.Clone(i.coords)
}

// Flat returns the row-major flat encoding.
func (i Index) Flat() int {
	flat := 0
	for d := 0; d < i.shape.DimensionCount(); d++ {
		flat = flat*i.shape.Dim(d) + i.coords[d]
	}
	return flat
}

// Equal reports structural equality.
func (i Index) Equal(other Index) bool {
	return i.shape.Equal(other.shape) && slices.Equal(i.coords, other.coords)
}

func (i Index) String() string {
	return fmt.Sprintf("%v%v", i.shape, i.coords)
}

// DiffIndex is a signed per-dimension offset over a shape.
type DiffIndex struct {
	shape   Shape
	offsets []int
}

// NewDiffIndex returns a DiffIndex with the given offsets.
func NewDiffIndex(shape Shape, offsets ...int) DiffIndex {
	if len(offsets) != shape.DimensionCount() {
		panic(fmt.Sprintf("tensor: %d offsets for %d dimensions", len(offsets), shape.DimensionCount()))
	}
	return DiffIndex{shape: shape, offsets: slices.Clone(offsets)}
}

// Shape returns the offset's shape.
func (d DiffIndex) Shape() Shape {
	return d.shape
}

// Offsets returns a copy of the per-dimension offsets.
func (d DiffIndex) Offsets() []int {
	return slices.Clone(d.offsets)
}

// CyclicAdd adds the offset to idx with wrap-around modulo each dimension
// size.
func (d DiffIndex) CyclicAdd(idx Index) Index {
	coords := idx.Coords()
	for dim := range coords {
		size := d.shape.Dim(dim)
		coords[dim] = ((coords[dim]+d.offsets[dim])%size + size) % size
	}
	return NewIndex(idx.Shape(), coords...)
}

// Add adds the offset to idx without wrap-around. The second return value
// is false when the result falls outside the shape.
func (d DiffIndex) Add(idx Index) (Index, bool) {
	coords := idx.Coords()
	for dim := range coords {
		coords[dim] += d.offsets[dim]
		if coords[dim] < 0 || coords[dim] >= d.shape.Dim(dim) {
			return Index{}, false
		}
	}
	return NewIndex(idx.Shape(), coords...), true
}

// Negate returns the opposite offset.
func (d DiffIndex) Negate() DiffIndex {
	offsets := d.Offsets()
	for i := range offsets {
		offsets[i] = -offsets[i]
	}
	return DiffIndex{shape: d.shape, offsets: offsets}
}
