package fhe

import (
	"fmt"

	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/tensor"
)

// Precision is the bootstrapping precision in bits. Only the discrete set
// {19, 26, 32} is supported by the targeted bootstrapping circuits.
type Precision int

// Supported bootstrapping precisions.
const (
	Precision19 = Precision(19)
	Precision26 = Precision(26)
	Precision32 = Precision(32)
)

// NewPrecision validates and returns a bootstrapping precision.
func NewPrecision(v int) (Precision, error) {
	switch Precision(v) {
	case Precision19, Precision26, Precision32:
		return Precision(v), nil
	}
	return 0, fmt.Errorf("fhe: unsupported bootstrapping precision %d (want 19, 26 or 32)", v)
}

// Context carries the scheme parameters the compiler needs: the chunk size,
// the ciphertext scale, the usable levels after a bootstrap and the
// bootstrapping precision.
type Context struct {
	logChunkSize tensor.ChunkSize
	logScale     LogScale
	usableLevels Level
	precision    Precision
}

// NewContext returns a program context. Panics on out-of-range chunk sizes
// or negative scales/levels; returns an error for unsupported precisions.
func NewContext(logChunkSize int, logScale int, usableLevels int, precision int) (Context, error) {
	p, err := NewPrecision(precision)
	if err != nil {
		return Context{}, err
	}
	return Context{
		logChunkSize: tensor.NewLogChunkSize(logChunkSize),
		logScale:     NewLogScale(logScale),
		usableLevels: NewLevel(usableLevels),
		precision:    p,
	}, nil
}

// ChunkSize returns the ciphertext slot count.
func (c Context) ChunkSize() tensor.ChunkSize {
	return c.logChunkSize
}

// LogScale returns the ciphertext log scale.
func (c Context) LogScale() LogScale {
	return c.logScale
}

// UsableLevels returns the number of levels usable after a bootstrap.
func (c Context) UsableLevels() Level {
	return c.usableLevels
}

// Precision returns the bootstrapping precision.
func (c Context) Precision() Precision {
	return c.precision
}

// Write serialises the context.
func (c Context) Write(w *serial.Writer) {
	w.WriteInt(c.logChunkSize.Log2())
	w.WriteInt(c.logScale.Value())
	w.WriteInt(c.usableLevels.Value())
	w.WriteInt(int(c.precision))
}

// ReadContext parses a context written by Write.
func ReadContext(s *serial.Scanner) (Context, error) {
	logChunk := s.Int()
	logScale := s.Int()
	usable := s.Int()
	precision := s.Int()
	if s.Err() != nil {
		return Context{}, s.Err()
	}
	if logChunk < 0 || logChunk >= tensor.MaxLogChunkSize || logScale < 0 || usable < 0 {
		return Context{}, fmt.Errorf("fhe: invalid context (%d, %d, %d, %d)", logChunk, logScale, usable, precision)
	}
	return NewContext(logChunk, logScale, usable, precision)
}
