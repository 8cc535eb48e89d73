package fhe

import (
	"math"
	"math/big"

	"github.com/ALTree/bigfloat"
	"github.com/tuneinsight/tensorc/serial"
)

// ScaledValue is a plaintext scalar together with the log scale it is
// encoded at.
type ScaledValue struct {
	LogScale LogScale
	Value    float64
}

// NewScaledValue pairs a scalar with an explicit encoding scale.
func NewScaledValue(logScale LogScale, value float64) ScaledValue {
	return ScaledValue{LogScale: logScale, Value: value}
}

// ScalarLogScale derives an encoding scale for a scalar the frontend did
// not pin: enough bits to hold the integer part of |v| on top of the
// ciphertext scale. The log2 is computed on big floats so that scalars far
// outside the float64 exponent sweet spot still round deterministically.
func ScalarLogScale(v float64, ctLogScale LogScale) LogScale {
	mag := math.Abs(v)
	if mag <= 1 {
		return ctLogScale
	}
	x := new(big.Float).SetPrec(128).SetFloat64(mag)
	log2 := new(big.Float).Quo(bigfloat.Log(x), bigfloat.Log(big.NewFloat(2).SetPrec(128)))
	bits, _ := log2.Float64()
	// Guard against the quotient landing epsilon above an integer.
	return ctLogScale + LogScale(int(math.Ceil(bits-1e-9)))
}

// Write serialises the scaled value as "<log_scale> <value>".
func (sv ScaledValue) Write(w *serial.Writer) {
	w.WriteInt(sv.LogScale.Value())
	w.WriteFloat(sv.Value)
}

// ReadScaledValue parses a scaled value written by Write.
func ReadScaledValue(s *serial.Scanner) (ScaledValue, error) {
	logScale := s.Int()
	value := s.Float()
	if s.Err() != nil {
		return ScaledValue{}, s.Err()
	}
	return ScaledValue{LogScale: LogScale(logScale), Value: value}, nil
}
