package tensor

import (
	"fmt"

	"github.com/tuneinsight/tensorc/utils"
)

// MaxLogChunkSize bounds the log2 of a chunk size: valid values lie in
// [0, MaxLogChunkSize).
const MaxLogChunkSize = 18

// ChunkSize is the number of slots of one ciphertext. It is always a power
// of two with log2 in [0, MaxLogChunkSize).
type ChunkSize struct {
	log2 int
}

// NewChunkSize returns the ChunkSize for a slot count. Panics if size is
// not a power of two or its log2 is out of bounds.
func NewChunkSize(size int) ChunkSize {
	if !utils.IsPowerOfTwo(size) {
		panic(fmt.Sprintf("tensor: chunk size %d is not a power of two", size))
	}
	return NewLogChunkSize(utils.CeilLog2(size))
}

// NewLogChunkSize returns the ChunkSize for a log2 slot count.
func NewLogChunkSize(log2 int) ChunkSize {
	if log2 < 0 || log2 >= MaxLogChunkSize {
		panic(fmt.Sprintf("tensor: log chunk size %d out of range [0, %d)", log2, MaxLogChunkSize))
	}
	return ChunkSize{log2: log2}
}

// Value returns the slot count.
func (c ChunkSize) Value() int {
	return 1 << c.log2
}

// Log2 returns the log2 of the slot count.
func (c ChunkSize) Log2() int {
	return c.log2
}

// Equal reports equality.
func (c ChunkSize) Equal(other ChunkSize) bool {
	return c.log2 == other.log2
}
