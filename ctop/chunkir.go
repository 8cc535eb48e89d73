package ctop

import (
	"fmt"

	"github.com/tuneinsight/tensorc/serial"
)

// ChunkIr keywords.
const (
	KeywordMask        = "MASK"
	KeywordIndirection = "INDIRECTION"
)

// NoIndex marks a flat-index entry of an Indirection that resolves to zero.
const NoIndex = -1

// ChunkIr is a handle to a plaintext chunk: either a literal {0,1} mask or
// an indirect read from a named frontend tensor. The compiler only
// constructs and stores handles; Resolve is for the consuming evaluator.
type ChunkIr interface {
	Keyword() string
	Resolve(frontendTensors map[string][]float64) ([]float64, error)
	writeArgs(w *serial.Writer)
}

// Mask is a dense {0,1} plaintext vector, stored as the indices of its
// one entries.
type Mask struct {
	Size int
	Ones []int
}

// Keyword implements ChunkIr.
func (m Mask) Keyword() string { return KeywordMask }

// Resolve materialises the mask vector.
func (m Mask) Resolve(map[string][]float64) ([]float64, error) {
	out := make([]float64, m.Size)
	for _, idx := range m.Ones {
		if idx < 0 || idx >= m.Size {
			return nil, fmt.Errorf("ctop: mask index %d out of range [0, %d)", idx, m.Size)
		}
		out[idx] = 1
	}
	return out, nil
}

func (m Mask) writeArgs(w *serial.Writer) {
	w.WriteInt(m.Size)
	w.WriteInts(m.Ones)
}

// Indirection reads a plaintext chunk from a named frontend tensor at the
// given flat indices; NoIndex entries resolve to zero.
type Indirection struct {
	Tensor      string
	FlatIndices []int
}

// Keyword implements ChunkIr.
func (ind Indirection) Keyword() string { return KeywordIndirection }

// Resolve reads the referenced slots out of the named frontend tensor.
func (ind Indirection) Resolve(frontendTensors map[string][]float64) ([]float64, error) {
	values, ok := frontendTensors[ind.Tensor]
	if !ok {
		return nil, fmt.Errorf("ctop: unknown frontend tensor %q", ind.Tensor)
	}
	out := make([]float64, len(ind.FlatIndices))
	for i, idx := range ind.FlatIndices {
		if idx == NoIndex {
			continue
		}
		if idx < 0 || idx >= len(values) {
			return nil, fmt.Errorf("ctop: flat index %d out of range for tensor %q", idx, ind.Tensor)
		}
		out[i] = values[idx]
	}
	return out, nil
}

func (ind Indirection) writeArgs(w *serial.Writer) {
	w.WriteToken(ind.Tensor)
	w.WriteInt(len(ind.FlatIndices))
	for _, idx := range ind.FlatIndices {
		w.WriteOptionalInt(idx, idx != NoIndex)
	}
}

// WriteChunkIr serialises a chunk handle as "<keyword> <args>".
func WriteChunkIr(w *serial.Writer, c ChunkIr) {
	w.WriteToken(c.Keyword())
	c.writeArgs(w)
}

// ReadChunkIr parses a chunk handle written by WriteChunkIr.
func ReadChunkIr(s *serial.Scanner) (ChunkIr, error) {
	keyword := s.Token()
	if s.Err() != nil {
		return nil, s.Err()
	}
	switch keyword {
	case KeywordMask:
		size := s.Int()
		ones := s.Ints()
		return Mask{Size: size, Ones: ones}, s.Err()
	case KeywordIndirection:
		name := s.Token()
		n := s.Int()
		if s.Err() != nil {
			return nil, s.Err()
		}
		indices := make([]int, 0, n)
		for i := 0; i < n; i++ {
			v, ok := s.OptionalInt()
			if !ok {
				v = NoIndex
			}
			indices = append(indices, v)
		}
		return Indirection{Tensor: name, FlatIndices: indices}, s.Err()
	}
	return nil, fmt.Errorf("ctop: unknown chunk type %q", keyword)
}
