package top

import (
	"fmt"

	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/tensor"
)

func (e InputE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteToken(e.Name)
	w.WriteInt(e.LogScale.Value())
}

func (e OutputE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteToken(e.Name)
}

func (e AddCCE) writeArgs(w *serial.Writer) { e.Shape.Write(w) }
func (e MulCCE) writeArgs(w *serial.Writer) { e.Shape.Write(w) }

func (e AddCPE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteToken(e.PtName)
	w.WriteInt(e.LogScale.Value())
}

func (e MulCPE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteToken(e.PtName)
	w.WriteInt(e.LogScale.Value())
}

func (e AddCSE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	e.Scalar.Write(w)
}

func (e MulCSE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	e.Scalar.Write(w)
}

func (e ReduceDimE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInt(e.Dim)
}

func (e ReplicateDimE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInt(e.Dim)
	w.WriteInt(e.Multiple)
}

func (e ReorderDimsE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInts(e.Perm)
}

func (e ResizeDimE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	e.OutShape.Write(w)
}

func (e DropDimE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInt(e.Dim)
}

func (e InsertDimE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInt(e.Dim)
}

func (e StrideE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInts(e.Strides)
}

func (e CyclicShiftE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInts(e.Offset)
}

func (e UnpaddedShiftE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInts(e.Offset)
}

func (e RotateE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInt(e.Shift)
}

func (e ChetRepackE) writeArgs(w *serial.Writer) { e.Shape.Write(w) }

func (e BootstrapE) writeArgs(w *serial.Writer) {
	e.Shape.Write(w)
	w.WriteInt(e.UsableLevels.Value())
}

// WriteEmbryo serialises an embryo operator as "<op_type> <shape> <args>".
func WriteEmbryo(w *serial.Writer, e Embryo) {
	w.WriteToken(e.TypeName())
	e.writeArgs(w)
}

type embryoReader func(s *serial.Scanner, shape tensor.Shape) (Embryo, error)

var embryoReaders = map[string]embryoReader{
	TypeInputC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return InputE{Shape: shape, Name: s.Token(), LogScale: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeOutputC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return OutputE{Shape: shape, Name: s.Token()}, s.Err()
	},
	TypeAddCC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return AddCCE{Shape: shape}, nil
	},
	TypeMulCC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return MulCCE{Shape: shape}, nil
	},
	TypeAddCP: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return AddCPE{Shape: shape, PtName: s.Token(), LogScale: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeMulCP: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return MulCPE{Shape: shape, PtName: s.Token(), LogScale: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeAddCS: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		scalar, err := fhe.ReadScaledValue(s)
		return AddCSE{Shape: shape, Scalar: scalar}, err
	},
	TypeMulCS: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		scalar, err := fhe.ReadScaledValue(s)
		return MulCSE{Shape: shape, Scalar: scalar}, err
	},
	TypeReduceDimC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return ReduceDimE{Shape: shape, Dim: s.Int()}, s.Err()
	},
	TypeReplicateDimC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return ReplicateDimE{Shape: shape, Dim: s.Int(), Multiple: s.Int()}, s.Err()
	},
	TypeReorderDimsC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return ReorderDimsE{Shape: shape, Perm: s.Ints()}, s.Err()
	},
	TypeResizeDimC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		out, err := tensor.ReadShape(s)
		return ResizeDimE{Shape: shape, OutShape: out}, err
	},
	TypeDropDimC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return DropDimE{Shape: shape, Dim: s.Int()}, s.Err()
	},
	TypeInsertDimC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return InsertDimE{Shape: shape, Dim: s.Int()}, s.Err()
	},
	TypeStrideC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return StrideE{Shape: shape, Strides: s.Ints()}, s.Err()
	},
	TypeMergedStrideC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return NewMergedStrideE(shape, s.Ints()), s.Err()
	},
	TypeCyclicShiftC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return CyclicShiftE{Shape: shape, Offset: s.Ints()}, s.Err()
	},
	TypeUnpaddedShift: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return UnpaddedShiftE{Shape: shape, Offset: s.Ints()}, s.Err()
	},
	TypeRotateC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return RotateE{Shape: shape, Shift: s.Int()}, s.Err()
	},
	TypeChetRepackC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return ChetRepackE{Shape: shape}, nil
	},
	TypeBootstrapC: func(s *serial.Scanner, shape tensor.Shape) (Embryo, error) {
		return BootstrapE{Shape: shape, UsableLevels: fhe.Level(s.Int())}, s.Err()
	},
}

// ReadEmbryo parses an embryo operator written by WriteEmbryo.
func ReadEmbryo(s *serial.Scanner) (Embryo, error) {
	name := s.Token()
	if s.Err() != nil {
		return nil, s.Err()
	}
	r, ok := embryoReaders[name]
	if !ok {
		return nil, fmt.Errorf("top: unknown embryo operator type %q", name)
	}
	shape, err := tensor.ReadShape(s)
	if err != nil {
		return nil, err
	}
	return r(s, shape)
}
