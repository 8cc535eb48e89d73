// Package ctop defines the scalar ciphertext operators and the ciphertext
// program the compiler emits. Every operator carries the LevelInfo the
// backend must realise it at; the program additionally owns the dictionary
// of plaintext-chunk handles its AddCP/MulCP operators reference.
package ctop

import (
	"fmt"

	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
)

// Operator type names, which double as serialisation keywords.
const (
	TypeInputC     = "InputC"
	TypeOutputC    = "OutputC"
	TypeAddCC      = "AddCC"
	TypeAddCP      = "AddCP"
	TypeAddCS      = "AddCS"
	TypeMulCC      = "MulCC"
	TypeMulCP      = "MulCP"
	TypeMulCS      = "MulCS"
	TypeRotateC    = "RotateC"
	TypeRescaleC   = "RescaleC"
	TypeBootstrapC = "BootstrapC"
	TypeZeroC      = "ZeroC"
)

// CtOp is a scalar ciphertext operator with its associated LevelInfo.
type CtOp interface {
	TypeName() string
	LevelInfo() fhe.LevelInfo
	// WithLevelInfo returns a copy of the operator at a different level.
	WithLevelInfo(fhe.LevelInfo) CtOp
	CopyNew() CtOp
	writeArgs(w *serial.Writer)
}

// ChunkSpec names one ciphertext chunk of a frontend tensor.
type ChunkSpec struct {
	Name   string
	Offset int
}

// InputC loads one encrypted chunk of a named frontend tensor.
type InputC struct {
	Spec ChunkSpec
	Info fhe.LevelInfo
}

// OutputC stores one chunk of a named result tensor.
type OutputC struct {
	Spec ChunkSpec
	Info fhe.LevelInfo
}

// AddCC adds two ciphertext chunks slot-wise.
type AddCC struct {
	Info fhe.LevelInfo
}

// MulCC multiplies two ciphertext chunks slot-wise.
type MulCC struct {
	Info fhe.LevelInfo
}

// AddCP adds a plaintext chunk, referenced by handle, to a ciphertext chunk.
type AddCP struct {
	Handle string
	Info   fhe.LevelInfo
}

// MulCP multiplies a ciphertext chunk by a plaintext chunk referenced by
// handle.
type MulCP struct {
	Handle string
	Info   fhe.LevelInfo
}

// AddCS adds a scalar to every slot.
type AddCS struct {
	Scalar fhe.ScaledValue
	Info   fhe.LevelInfo
}

// MulCS multiplies every slot by a scalar.
type MulCS struct {
	Scalar fhe.ScaledValue
	Info   fhe.LevelInfo
}

// RotateC rotates the slots left by Shift positions.
type RotateC struct {
	Shift int
	Info  fhe.LevelInfo
}

// RescaleC divides the ciphertext scale by 2^Amount, consuming one level.
type RescaleC struct {
	Amount fhe.LogScale
	Info   fhe.LevelInfo
}

// BootstrapC restores the ciphertext to the scheme's usable levels.
type BootstrapC struct {
	Info fhe.LevelInfo
}

// ZeroC is the all-zero ciphertext chunk.
type ZeroC struct {
	Info fhe.LevelInfo
}

func (o InputC) TypeName() string     { return TypeInputC }
func (o OutputC) TypeName() string    { return TypeOutputC }
func (o AddCC) TypeName() string      { return TypeAddCC }
func (o MulCC) TypeName() string      { return TypeMulCC }
func (o AddCP) TypeName() string      { return TypeAddCP }
func (o MulCP) TypeName() string      { return TypeMulCP }
func (o AddCS) TypeName() string      { return TypeAddCS }
func (o MulCS) TypeName() string      { return TypeMulCS }
func (o RotateC) TypeName() string    { return TypeRotateC }
func (o RescaleC) TypeName() string   { return TypeRescaleC }
func (o BootstrapC) TypeName() string { return TypeBootstrapC }
func (o ZeroC) TypeName() string      { return TypeZeroC }

func (o InputC) LevelInfo() fhe.LevelInfo     { return o.Info }
func (o OutputC) LevelInfo() fhe.LevelInfo    { return o.Info }
func (o AddCC) LevelInfo() fhe.LevelInfo      { return o.Info }
func (o MulCC) LevelInfo() fhe.LevelInfo      { return o.Info }
func (o AddCP) LevelInfo() fhe.LevelInfo      { return o.Info }
func (o MulCP) LevelInfo() fhe.LevelInfo      { return o.Info }
func (o AddCS) LevelInfo() fhe.LevelInfo      { return o.Info }
func (o MulCS) LevelInfo() fhe.LevelInfo      { return o.Info }
func (o RotateC) LevelInfo() fhe.LevelInfo    { return o.Info }
func (o RescaleC) LevelInfo() fhe.LevelInfo   { return o.Info }
func (o BootstrapC) LevelInfo() fhe.LevelInfo { return o.Info }
func (o ZeroC) LevelInfo() fhe.LevelInfo      { return o.Info }

func (o InputC) WithLevelInfo(li fhe.LevelInfo) CtOp     { o.Info = li; return o }
func (o OutputC) WithLevelInfo(li fhe.LevelInfo) CtOp    { o.Info = li; return o }
func (o AddCC) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }
func (o MulCC) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }
func (o AddCP) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }
func (o MulCP) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }
func (o AddCS) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }
func (o MulCS) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }
func (o RotateC) WithLevelInfo(li fhe.LevelInfo) CtOp    { o.Info = li; return o }
func (o RescaleC) WithLevelInfo(li fhe.LevelInfo) CtOp   { o.Info = li; return o }
func (o BootstrapC) WithLevelInfo(li fhe.LevelInfo) CtOp { o.Info = li; return o }
func (o ZeroC) WithLevelInfo(li fhe.LevelInfo) CtOp      { o.Info = li; return o }

func (o InputC) CopyNew() CtOp     { return o }
func (o OutputC) CopyNew() CtOp    { return o }
func (o AddCC) CopyNew() CtOp      { return o }
func (o MulCC) CopyNew() CtOp      { return o }
func (o AddCP) CopyNew() CtOp      { return o }
func (o MulCP) CopyNew() CtOp      { return o }
func (o AddCS) CopyNew() CtOp      { return o }
func (o MulCS) CopyNew() CtOp      { return o }
func (o RotateC) CopyNew() CtOp    { return o }
func (o RescaleC) CopyNew() CtOp   { return o }
func (o BootstrapC) CopyNew() CtOp { return o }
func (o ZeroC) CopyNew() CtOp      { return o }

func (o InputC) writeArgs(w *serial.Writer) {
	w.WriteToken(o.Spec.Name)
	w.WriteInt(o.Spec.Offset)
}

func (o OutputC) writeArgs(w *serial.Writer) {
	w.WriteToken(o.Spec.Name)
	w.WriteInt(o.Spec.Offset)
}

func (o AddCC) writeArgs(*serial.Writer) {}
func (o MulCC) writeArgs(*serial.Writer) {}

func (o AddCP) writeArgs(w *serial.Writer) { w.WriteToken(o.Handle) }
func (o MulCP) writeArgs(w *serial.Writer) { w.WriteToken(o.Handle) }

func (o AddCS) writeArgs(w *serial.Writer) { o.Scalar.Write(w) }
func (o MulCS) writeArgs(w *serial.Writer) { o.Scalar.Write(w) }

func (o RotateC) writeArgs(w *serial.Writer) { w.WriteInt(o.Shift) }

func (o RescaleC) writeArgs(w *serial.Writer) { w.WriteInt(o.Amount.Value()) }

func (o BootstrapC) writeArgs(*serial.Writer) {}
func (o ZeroC) writeArgs(*serial.Writer)      {}

// Write serialises an operator as "<type_name> <args> <level_info>".
func Write(w *serial.Writer, op CtOp) {
	w.WriteToken(op.TypeName())
	op.writeArgs(w)
	op.LevelInfo().Write(w)
}

type reader func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error)

// The constructor table is initialised once; deserialisation resolves
// operators through it by type name.
var readers = map[string]reader{
	TypeInputC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		spec := ChunkSpec{Name: s.Token(), Offset: s.Int()}
		info, err := li()
		return InputC{Spec: spec, Info: info}, err
	},
	TypeOutputC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		spec := ChunkSpec{Name: s.Token(), Offset: s.Int()}
		info, err := li()
		return OutputC{Spec: spec, Info: info}, err
	},
	TypeAddCC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		info, err := li()
		return AddCC{Info: info}, err
	},
	TypeMulCC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		info, err := li()
		return MulCC{Info: info}, err
	},
	TypeAddCP: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		handle := s.Token()
		info, err := li()
		return AddCP{Handle: handle, Info: info}, err
	},
	TypeMulCP: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		handle := s.Token()
		info, err := li()
		return MulCP{Handle: handle, Info: info}, err
	},
	TypeAddCS: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		scalar, err := fhe.ReadScaledValue(s)
		if err != nil {
			return nil, err
		}
		info, err := li()
		return AddCS{Scalar: scalar, Info: info}, err
	},
	TypeMulCS: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		scalar, err := fhe.ReadScaledValue(s)
		if err != nil {
			return nil, err
		}
		info, err := li()
		return MulCS{Scalar: scalar, Info: info}, err
	},
	TypeRotateC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		shift := s.Int()
		info, err := li()
		return RotateC{Shift: shift, Info: info}, err
	},
	TypeRescaleC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		amount := s.Int()
		info, err := li()
		return RescaleC{Amount: fhe.LogScale(amount), Info: info}, err
	},
	TypeBootstrapC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		info, err := li()
		return BootstrapC{Info: info}, err
	},
	TypeZeroC: func(s *serial.Scanner, li func() (fhe.LevelInfo, error)) (CtOp, error) {
		info, err := li()
		return ZeroC{Info: info}, err
	},
}

// Read parses an operator written by Write.
func Read(s *serial.Scanner) (CtOp, error) {
	name := s.Token()
	if s.Err() != nil {
		return nil, s.Err()
	}
	r, ok := readers[name]
	if !ok {
		return nil, fmt.Errorf("ctop: unknown operator type %q", name)
	}
	return r(s, func() (fhe.LevelInfo, error) { return fhe.ReadLevelInfo(s) })
}
