// Package tensor implements shapes, tensor indices and the layout system
// mapping logical tensor indices to (ciphertext chunk, slot) pairs.
package tensor

import (
	"fmt"

	"github.com/tuneinsight/tensorc/serial"
	"golang.org/x/exp/slices"
)

// Shape is an ordered sequence of positive dimension sizes. Shapes are
// treated as immutable; mutating methods return copies.
type Shape struct {
	dims []int
}

// NewShape returns a Shape with the given dimension sizes. Panics if any
// size is not positive.
func NewShape(dims ...int) Shape {
	if len(dims) == 0 {
		panic("tensor: shape needs at least one dimension")
	}
	for _, d := range dims {
		if d <= 0 {
			panic(fmt.Sprintf("tensor: invalid dimension size %d", d))
		}
	}
	return Shape{dims: slices.Clone(dims)}
}

// DimensionCount returns the number of dimensions.
func (s Shape) DimensionCount() int {
	return len(s.dims)
}

// Dim returns the size of dimension d.
func (s Shape) Dim(d int) int {
	return s.dims[d]
}

// Dims returns a copy of the dimension sizes.
func (s Shape) Dims() []int {
	return slices.Clone(s.dims)
}

// ValueCount returns the product of the dimension sizes.
func (s Shape) ValueCount() int {
	count := 1
	for _, d := range s.dims {
		count *= d
	}
	return count
}

// WithDim returns a copy of s with dimension d resized to size.
func (s Shape) WithDim(d, size int) Shape {
	dims := s.Dims()
	dims[d] = size
	return NewShape(dims...)
}

// DropDim returns a copy of s with dimension d removed. The dimension must
// have size 1.
func (s Shape) DropDim(d int) Shape {
	if s.dims[d] != 1 {
		panic(fmt.Sprintf("tensor: cannot drop dimension %d of size %d", d, s.dims[d]))
	}
	dims := append(slices.Clone(s.dims[:d]), s.dims[d+1:]...)
	return NewShape(dims...)
}

// InsertDim returns a copy of s with a size-1 dimension inserted at d.
func (s Shape) InsertDim(d int) Shape {
	dims := slices.Insert(s.Dims(), d, 1)
	return NewShape(dims...)
}

// Equal reports structural equality.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s.dims, other.dims)
}

func (s Shape) String() string {
	return fmt.Sprintf("%v", s.dims)
}

// Write serialises the shape as a length-prefixed dimension list.
func (s Shape) Write(w *serial.Writer) {
	w.WriteInts(s.dims)
}

// ReadShape parses a shape written by Write.
func ReadShape(s *serial.Scanner) (Shape, error) {
	dims := s.Ints()
	if s.Err() != nil {
		return Shape{}, s.Err()
	}
	if len(dims) == 0 {
		return Shape{}, fmt.Errorf("tensor: empty shape")
	}
	for _, d := range dims {
		if d <= 0 {
			return Shape{}, fmt.Errorf("tensor: invalid dimension size %d", d)
		}
	}
	return Shape{dims: dims}, nil
}
