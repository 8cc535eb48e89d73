package tensor

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// LaidOutChunk is one chunk of a laid-out tensor: the chunk offset and the
// value materialising that chunk.
type LaidOutChunk[T any] struct {
	Offset int
	Chunk  T
}

// LaidOutTensor is a finite set of (chunk offset, chunk) pairs, one per
// chunk offset of a layout.
type LaidOutTensor[T any] struct {
	layout Layout
	chunks []LaidOutChunk[T]
}

// NewLaidOutTensor returns a laid-out tensor. The chunk offsets must be
// exactly the layout's enumeration, in ascending order.
func NewLaidOutTensor[T any](layout Layout, chunks []LaidOutChunk[T]) LaidOutTensor[T] {
	offsets := make([]int, len(chunks))
	for i, c := range chunks {
		offsets[i] = c.Offset
	}
	if !slices.Equal(offsets, layout.ChunkOffsets()) {
		panic(fmt.Sprintf("tensor: chunk offsets %v do not enumerate layout %v", offsets, layout))
	}
	return LaidOutTensor[T]{layout: layout, chunks: slices.Clone(chunks)}
}

// Layout returns the shared layout of every chunk.
func (t LaidOutTensor[T]) Layout() Layout {
	return t.layout
}

// Chunks returns the chunks in ascending offset order.
func (t LaidOutTensor[T]) Chunks() []LaidOutChunk[T] {
	return slices.Clone(t.chunks)
}

// ChunkAt returns the chunk at the given offset.
func (t LaidOutTensor[T]) ChunkAt(offset int) T {
	for _, c := range t.chunks {
		if c.Offset == offset {
			return c.Chunk
		}
	}
	panic(fmt.Sprintf("tensor: no chunk at offset %d", offset))
}

// MapChunks returns a new laid-out tensor with the same layout whose chunks
// are f applied to each chunk in offset order.
func MapChunks[T, U any](t LaidOutTensor[T], f func(offset int, chunk T) U) LaidOutTensor[U] {
	out := make([]LaidOutChunk[U], len(t.chunks))
	for i, c := range t.chunks {
		out[i] = LaidOutChunk[U]{Offset: c.Offset, Chunk: f(c.Offset, c.Chunk)}
	}
	return LaidOutTensor[U]{layout: t.layout, chunks: out}
}

// WithLayout reinterprets the chunks of t under a different layout with the
// same chunk enumeration.
func WithLayout[T any](t LaidOutTensor[T], layout Layout) LaidOutTensor[T] {
	return NewLaidOutTensor(layout, t.chunks)
}
