package tensor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/utils"
	"golang.org/x/exp/slices"
)

// DimensionBit identifies bit bitIndex of the coordinate of one dimension.
type DimensionBit struct {
	Dimension int
	BitIndex  int
}

// LayoutBit is a position in a layout's bit sequence: either a DimensionBit
// or a gap. A gap always contributes a zero bit.
type LayoutBit struct {
	bit DimensionBit
	gap bool
}

// Gap returns the gap layout bit.
func Gap() LayoutBit {
	return LayoutBit{gap: true}
}

// Bit returns a layout bit referencing the given dimension bit.
func Bit(dimension, bitIndex int) LayoutBit {
	return LayoutBit{bit: DimensionBit{Dimension: dimension, BitIndex: bitIndex}}
}

// IsGap reports whether the bit is a gap.
func (b LayoutBit) IsGap() bool {
	return b.gap
}

// DimensionBit returns the referenced dimension bit. Panics on a gap.
func (b LayoutBit) DimensionBit() DimensionBit {
	if b.gap {
		panic("tensor: gap layout bit has no dimension bit")
	}
	return b.bit
}

func (b LayoutBit) String() string {
	if b.gap {
		return serial.Missing
	}
	return fmt.Sprintf("%d:%d", b.bit.Dimension, b.bit.BitIndex)
}

// coordBits returns the number of coordinate bits of dimension d of shape s.
func coordBits(s Shape, d int) int {
	return utils.CeilLog2(s.Dim(d))
}

// poolBits returns every dimension bit of the shape in canonical row-major
// order: innermost dimension's bit 0 first.
func poolBits(s Shape) []DimensionBit {
	var pool []DimensionBit
	for d := s.DimensionCount() - 1; d >= 0; d-- {
		for b := 0; b < coordBits(s, d); b++ {
			pool = append(pool, DimensionBit{Dimension: d, BitIndex: b})
		}
	}
	return pool
}

// Layout assigns each logical tensor index of a shape to a (chunk offset,
// slot offset) pair. The bit sequence is ordered from least significant
// position upward; the lowest log2(chunk size) positions are the chunk bits,
// the remainder are the tensor-offset bits.
type Layout struct {
	shape     Shape
	chunkSize ChunkSize
	bits      []LayoutBit
}

// NewLayout returns the layout of shape over chunkSize with the given bit
// prefix. The constructor canonicalises the sequence: gaps are prepended
// until the chunk-bit region is full, then every dimension bit not already
// present is appended, in row-major order, as a tensor-offset bit. Explicit
// gaps are preserved where given. Panics if a bit references a dimension or
// bit index out of range.
func NewLayout(shape Shape, chunkSize ChunkSize, bits []LayoutBit) Layout {
	for _, b := range bits {
		if b.IsGap() {
			continue
		}
		db := b.DimensionBit()
		if db.Dimension < 0 || db.Dimension >= shape.DimensionCount() {
			panic(fmt.Sprintf("tensor: layout bit references dimension %d of a %d-dimensional shape", db.Dimension, shape.DimensionCount()))
		}
		if db.BitIndex < 0 || db.BitIndex >= coordBits(shape, db.Dimension) {
			panic(fmt.Sprintf("tensor: layout bit %s out of range for dimension of size %d", b, shape.Dim(db.Dimension)))
		}
	}
	completed := slices.Clone(bits)
	for len(completed) < chunkSize.Log2() {
		completed = append([]LayoutBit{Gap()}, completed...)
	}
	present := map[DimensionBit]struct{}{}
	for _, b := range completed {
		if !b.IsGap() {
			present[b.DimensionBit()] = struct{}{}
		}
	}
	for _, db := range poolBits(shape) {
		if _, ok := present[db]; !ok {
			completed = append(completed, Bit(db.Dimension, db.BitIndex))
		}
	}
	return Layout{shape: shape, chunkSize: chunkSize, bits: completed}
}

// RowMajorLayout returns the default layout: the canonical row-major bit
// order with no gaps beyond chunk padding.
func RowMajorLayout(shape Shape, chunkSize ChunkSize) Layout {
	var bits []LayoutBit
	for _, db := range poolBits(shape) {
		bits = append(bits, Bit(db.Dimension, db.BitIndex))
	}
	return NewLayout(shape, chunkSize, bits)
}

// GetShape returns the layout's shape.
func (l Layout) GetShape() Shape {
	return l.shape
}

// ChunkSize returns the layout's chunk size.
func (l Layout) ChunkSize() ChunkSize {
	return l.chunkSize
}

// Bits returns a copy of the full bit sequence.
func (l Layout) Bits() []LayoutBit {
	return slices.Clone(l.bits)
}

// ChunkBits returns the lowest log2(chunk size) bits.
func (l Layout) ChunkBits() []LayoutBit {
	return slices.Clone(l.bits[:l.chunkSize.Log2()])
}

// TensorOffsetBits returns the bits above the chunk bits.
func (l Layout) TensorOffsetBits() []LayoutBit {
	return slices.Clone(l.bits[l.chunkSize.Log2():])
}

// offsetPositions returns the non-gap positions of the tensor-offset region,
// relative to the start of that region.
func (l Layout) offsetPositions() []int {
	var ps []int
	for i, b := range l.bits[l.chunkSize.Log2():] {
		if !b.IsGap() {
			ps = append(ps, i)
		}
	}
	return ps
}

// TotalChunks returns the number of chunks the layout enumerates.
func (l Layout) TotalChunks() int {
	return 1 << len(l.offsetPositions())
}

// TotalSlots returns the total slot capacity across all chunks.
func (l Layout) TotalSlots() int {
	return l.TotalChunks() * l.chunkSize.Value()
}

// ChunkOffsets enumerates every chunk offset of the layout in ascending
// order. Gap positions in the tensor-offset region are fixed at zero.
func (l Layout) ChunkOffsets() []int {
	positions := l.offsetPositions()
	offsets := make([]int, 0, 1<<len(positions))
	for m := 0; m < 1<<len(positions); m++ {
		offset := 0
		for i, p := range positions {
			offset |= (m >> i & 1) << p
		}
		offsets = append(offsets, offset)
	}
	return offsets
}

// ChunkAndSlot maps a tensor index to its (chunk offset, slot offset) pair.
func (l Layout) ChunkAndSlot(idx Index) (chunkOffset, slot int) {
	if !idx.Shape().Equal(l.shape) {
		panic(fmt.Sprintf("tensor: index shape %v does not match layout shape %v", idx.Shape(), l.shape))
	}
	logC := l.chunkSize.Log2()
	for p, b := range l.bits {
		if b.IsGap() {
			continue
		}
		db := b.DimensionBit()
		bit := idx.Coord(db.Dimension) >> db.BitIndex & 1
		if p < logC {
			slot |= bit << p
		} else {
			chunkOffset |= bit << (p - logC)
		}
	}
	return chunkOffset, slot
}

// TensorIndices returns, for one chunk offset, a slice of length chunk size
// with one entry per slot: the Index mapped to that slot, or nil when the
// slot is a gap (it must decrypt to zero).
func (l Layout) TensorIndices(chunkOffset int) []*Index {
	logC := l.chunkSize.Log2()
	out := make([]*Index, l.chunkSize.Value())
	for slot := range out {
		coords := make([]int, l.shape.DimensionCount())
		assigned := map[DimensionBit]int{}
		valid := true
		for p, b := range l.bits {
			var bit int
			if p < logC {
				bit = slot >> p & 1
			} else {
				bit = chunkOffset >> (p - logC) & 1
			}
			if b.IsGap() {
				if bit != 0 {
					valid = false
					break
				}
				continue
			}
			db := b.DimensionBit()
			if prev, ok := assigned[db]; ok {
				if prev != bit {
					valid = false
					break
				}
				continue
			}
			assigned[db] = bit
			coords[db.Dimension] |= bit << db.BitIndex
		}
		if !valid {
			continue
		}
		for d, c := range coords {
			if c >= l.shape.Dim(d) {
				valid = false
				break
			}
		}
		if valid {
			idx := NewIndex(l.shape, coords...)
			out[slot] = &idx
		}
	}
	return out
}

// Equal reports structural equality of shape, chunk size and bit sequence.
func (l Layout) Equal(other Layout) bool {
	if !l.shape.Equal(other.shape) || !l.chunkSize.Equal(other.chunkSize) {
		return false
	}
	return slices.Equal(l.bits, other.bits)
}

func (l Layout) String() string {
	parts := make([]string, len(l.bits))
	for i, b := range l.bits {
		parts[i] = b.String()
	}
	return fmt.Sprintf("%v/%d[%s]", l.shape, l.chunkSize.Value(), strings.Join(parts, " "))
}

// ConversionTentacles is the tentacle estimate of converting from in to out:
// in.TotalChunks() * 2^d where d counts the chunk-bit positions at which the
// two layouts disagree (gaps in the input excluded).
func ConversionTentacles(in, out Layout) int {
	if !in.chunkSize.Equal(out.chunkSize) {
		panic("tensor: conversion between different chunk sizes")
	}
	discrepancies := 0
	for p := 0; p < in.chunkSize.Log2(); p++ {
		if !in.bits[p].IsGap() && in.bits[p] != out.bits[p] {
			discrepancies++
		}
	}
	return in.TotalChunks() * (1 << discrepancies)
}

// Write serialises the layout.
func (l Layout) Write(w *serial.Writer) {
	l.shape.Write(w)
	w.WriteInt(l.chunkSize.Log2())
	w.WriteInt(len(l.bits))
	for _, b := range l.bits {
		w.WriteToken(b.String())
	}
}

// ReadLayout parses a layout written by Write.
func ReadLayout(s *serial.Scanner) (Layout, error) {
	shape, err := ReadShape(s)
	if err != nil {
		return Layout{}, err
	}
	logC := s.Int()
	n := s.Int()
	if s.Err() != nil {
		return Layout{}, s.Err()
	}
	if logC < 0 || logC >= MaxLogChunkSize {
		return Layout{}, fmt.Errorf("tensor: log chunk size %d out of range", logC)
	}
	bits := make([]LayoutBit, 0, n)
	for i := 0; i < n; i++ {
		tok := s.Token()
		if s.Err() != nil {
			return Layout{}, s.Err()
		}
		if tok == serial.Missing {
			bits = append(bits, Gap())
			continue
		}
		dim, bitIdx, ok := strings.Cut(tok, ":")
		if !ok {
			return Layout{}, fmt.Errorf("tensor: malformed layout bit %q", tok)
		}
		d, err1 := strconv.Atoi(dim)
		b, err2 := strconv.Atoi(bitIdx)
		if err1 != nil || err2 != nil {
			return Layout{}, fmt.Errorf("tensor: malformed layout bit %q", tok)
		}
		bits = append(bits, Bit(d, b))
	}
	return NewLayout(shape, NewLogChunkSize(logC), bits), nil
}
