package top

import (
	"fmt"

	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/tensor"
)

func (o *TInputC) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteToken(o.Name)
	w.WriteInt(o.LogScale.Value())
}

func (o *TOutputC) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteToken(o.Name)
}

func (o *TAddCC) writeArgs(w *serial.Writer) { o.Layout.Write(w) }
func (o *TMulCC) writeArgs(w *serial.Writer) { o.Layout.Write(w) }

func (o *TAddCP) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteToken(o.PtName)
	w.WriteInt(o.PtLogScale.Value())
}

func (o *TMulCP) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteToken(o.PtName)
	w.WriteInt(o.PtLogScale.Value())
}

func (o *TAddCS) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	o.Scalar.Write(w)
}

func (o *TMulCS) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	o.Scalar.Write(w)
}

func (o *TReduceDimC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInt(o.Dim)
}

func (o *TReplicateDimC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInt(o.Dim)
	w.WriteInt(o.Multiple)
}

func (o *TReorderDimsC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInts(o.Perm)
}

func (o *TResizeDimC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
}

func (o *TDropDimC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInt(o.Dim)
}

func (o *TInsertDimC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInt(o.Dim)
}

func (o *TStrideC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInts(o.Strides)
}

func (o *TCyclicShiftC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInts(o.Offset)
}

func (o *TUnpaddedShiftC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
	w.WriteInts(o.Offset)
}

func (o *TRotateC) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteInt(o.Shift)
}

func (o *TRescaleC) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteInt(o.Amount.Value())
}

func (o *TBootstrapC) writeArgs(w *serial.Writer) {
	o.Layout.Write(w)
	w.WriteInt(o.UsableLevels.Value())
	switch o.Shortcut {
	case ShortcutUnmarked:
		w.WriteToken(serial.Missing)
	case ShortcutNo:
		w.WriteInt(0)
	case ShortcutYes:
		w.WriteInt(1)
	}
}

func (o *TLayoutConversionC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
}

func (o *TChetRepackC) writeArgs(w *serial.Writer) {
	o.In.Write(w)
	o.Out.Write(w)
}

// WriteTOp serialises an operator as "<type_name> <args>".
func WriteTOp(w *serial.Writer, op TOp) {
	w.WriteToken(op.TypeName())
	op.writeArgs(w)
}

func readLayoutPair(s *serial.Scanner) (tensor.Layout, tensor.Layout, error) {
	in, err := tensor.ReadLayout(s)
	if err != nil {
		return tensor.Layout{}, tensor.Layout{}, err
	}
	out, err := tensor.ReadLayout(s)
	return in, out, err
}

type tOpReader func(s *serial.Scanner) (TOp, error)

var tOpReaders = map[string]tOpReader{
	TypeTInputC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		return &TInputC{Layout: layout, Name: s.Token(), LogScale: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeTOutputC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		return &TOutputC{Layout: layout, Name: s.Token()}, s.Err()
	},
	TypeTAddCC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		return &TAddCC{Layout: layout}, err
	},
	TypeTMulCC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		return &TMulCC{Layout: layout}, err
	},
	TypeTAddCP: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		return &TAddCP{Layout: layout, PtName: s.Token(), PtLogScale: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeTMulCP: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		return &TMulCP{Layout: layout, PtName: s.Token(), PtLogScale: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeTAddCS: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		scalar, err := fhe.ReadScaledValue(s)
		return &TAddCS{Layout: layout, Scalar: scalar}, err
	},
	TypeTMulCS: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		scalar, err := fhe.ReadScaledValue(s)
		return &TMulCS{Layout: layout, Scalar: scalar}, err
	},
	TypeTReduceDimC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TReduceDimC{In: in, Out: out, Dim: s.Int()}, s.Err()
	},
	TypeTReplicateDimC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TReplicateDimC{In: in, Out: out, Dim: s.Int(), Multiple: s.Int()}, s.Err()
	},
	TypeTReorderDimsC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TReorderDimsC{In: in, Out: out, Perm: s.Ints()}, s.Err()
	},
	TypeTResizeDimC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TResizeDimC{In: in, Out: out}, s.Err()
	},
	TypeTDropDimC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TDropDimC{In: in, Out: out, Dim: s.Int()}, s.Err()
	},
	TypeTInsertDimC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TInsertDimC{In: in, Out: out, Dim: s.Int()}, s.Err()
	},
	TypeTStrideC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TStrideC{In: in, Out: out, Strides: s.Ints()}, s.Err()
	},
	TypeTCyclicShiftC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TCyclicShiftC{In: in, Out: out, Offset: s.Ints()}, s.Err()
	},
	TypeTUnpaddedShiftC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TUnpaddedShiftC{In: in, Out: out, Offset: s.Ints()}, s.Err()
	},
	TypeTRotateC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		return &TRotateC{Layout: layout, Shift: s.Int()}, s.Err()
	},
	TypeTRescaleC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		return &TRescaleC{Layout: layout, Amount: fhe.LogScale(s.Int())}, s.Err()
	},
	TypeTBootstrapC: func(s *serial.Scanner) (TOp, error) {
		layout, err := tensor.ReadLayout(s)
		if err != nil {
			return nil, err
		}
		usable := fhe.Level(s.Int())
		mark := ShortcutUnmarked
		if v, ok := s.OptionalInt(); ok {
			if v == 1 {
				mark = ShortcutYes
			} else {
				mark = ShortcutNo
			}
		}
		return &TBootstrapC{Layout: layout, UsableLevels: usable, Shortcut: mark}, s.Err()
	},
	TypeTLayoutConversionC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TLayoutConversionC{In: in, Out: out}, s.Err()
	},
	TypeTChetRepackC: func(s *serial.Scanner) (TOp, error) {
		in, out, err := readLayoutPair(s)
		if err != nil {
			return nil, err
		}
		return &TChetRepackC{In: in, Out: out}, s.Err()
	},
}

// ReadTOp parses an operator written by WriteTOp.
func ReadTOp(s *serial.Scanner) (TOp, error) {
	name := s.Token()
	if s.Err() != nil {
		return nil, s.Err()
	}
	r, ok := tOpReaders[name]
	if !ok {
		return nil, fmt.Errorf("top: unknown operator type %q", name)
	}
	return r(s)
}
