package top

import (
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
)

// Scaled pairs a tensor operator with the log scale of its output.
type Scaled struct {
	Op       TOp
	LogScale fhe.LogScale
}

// CopyNew implements dag.Value.
func (s Scaled) CopyNew() Scaled {
	return Scaled{Op: s.Op.CopyNew(), LogScale: s.LogScale}
}

// WriteScaled serialises a scaled operator.
func WriteScaled(w *serial.Writer, s Scaled) {
	WriteTOp(w, s.Op)
	w.WriteInt(s.LogScale.Value())
}

// ReadScaled parses a scaled operator written by WriteScaled.
func ReadScaled(s *serial.Scanner) (Scaled, error) {
	op, err := ReadTOp(s)
	if err != nil {
		return Scaled{}, err
	}
	logScale := s.Int()
	return Scaled{Op: op, LogScale: fhe.LogScale(logScale)}, s.Err()
}
