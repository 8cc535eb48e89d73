package top

import (
	"fmt"

	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/utils"
	"golang.org/x/exp/slices"
)

// Embryo type names; these double as the surface token names of the parsed
// tensor program, "<op_type> <shape> <op-specific args>".
const (
	TypeInputC        = "InputC"
	TypeOutputC       = "OutputC"
	TypeAddCC         = "AddCC"
	TypeAddCP         = "AddCP"
	TypeAddCS         = "AddCS"
	TypeMulCC         = "MulCC"
	TypeMulCP         = "MulCP"
	TypeMulCS         = "MulCS"
	TypeReduceDimC    = "ReduceDimC"
	TypeReplicateDimC = "ReplicateDimC"
	TypeReorderDimsC  = "ReorderDimC"
	TypeResizeDimC    = "ResizeDimC"
	TypeDropDimC      = "DropDimC"
	TypeInsertDimC    = "InsertDimC"
	TypeStrideC       = "StrideDimC"
	TypeMergedStrideC = "MergedStrideDimC"
	TypeCyclicShiftC  = "CyclicShiftC"
	TypeUnpaddedShift = "UnpaddedShiftC"
	TypeRotateC       = "RotateC"
	TypeChetRepackC   = "ChetRepackC"
	TypeBootstrapC    = "BootstrapC"
)

// Embryo is a pre-layout tensor operator: shapes are known, layouts are not.
type Embryo interface {
	TypeName() string
	InputShape() tensor.Shape
	OutputShape() tensor.Shape
	CopyNew() Embryo
	// Lower attaches layouts, turning the embryo into a TOp.
	Lower(in, out tensor.Layout) TOp
	writeArgs(w *serial.Writer)
}

// InputE declares an encrypted input tensor.
type InputE struct {
	Shape    tensor.Shape
	Name     string
	LogScale fhe.LogScale
}

// OutputE declares a result tensor.
type OutputE struct {
	Shape tensor.Shape
	Name  string
}

// AddCCE is element-wise ciphertext addition.
type AddCCE struct {
	Shape tensor.Shape
}

// MulCCE is element-wise ciphertext multiplication.
type MulCCE struct {
	Shape tensor.Shape
}

// AddCPE adds a named plaintext tensor element-wise.
type AddCPE struct {
	Shape    tensor.Shape
	PtName   string
	LogScale fhe.LogScale
}

// MulCPE multiplies by a named plaintext tensor element-wise.
type MulCPE struct {
	Shape    tensor.Shape
	PtName   string
	LogScale fhe.LogScale
}

// AddCSE adds a scalar to every element.
type AddCSE struct {
	Shape  tensor.Shape
	Scalar fhe.ScaledValue
}

// MulCSE multiplies every element by a scalar.
type MulCSE struct {
	Shape  tensor.Shape
	Scalar fhe.ScaledValue
}

// ReduceDimE sums over one dimension, leaving it with size 1.
type ReduceDimE struct {
	Shape tensor.Shape
	Dim   int
}

// ReplicateDimE replicates one dimension by an integral multiple.
type ReplicateDimE struct {
	Shape    tensor.Shape
	Dim      int
	Multiple int
}

// ReorderDimsE permutes dimensions; output dimension i is input dimension
// Perm[i].
type ReorderDimsE struct {
	Shape tensor.Shape
	Perm  []int
}

// ResizeDimE crops or zero-pads each dimension to OutShape.
type ResizeDimE struct {
	Shape    tensor.Shape
	OutShape tensor.Shape
}

// DropDimE removes a size-1 dimension.
type DropDimE struct {
	Shape tensor.Shape
	Dim   int
}

// InsertDimE inserts a size-1 dimension.
type InsertDimE struct {
	Shape tensor.Shape
	Dim   int
}

// StrideE keeps every Strides[d]-th element of each dimension. Strides are
// powers of two.
type StrideE struct {
	Shape   tensor.Shape
	Strides []int
	merged  bool
}

// NewMergedStrideE marks a stride as the product of a merged stride chain.
func NewMergedStrideE(shape tensor.Shape, strides []int) StrideE {
	return StrideE{Shape: shape, Strides: strides, merged: true}
}

// Merged reports whether this stride was produced by merging a chain.
func (e StrideE) Merged() bool { return e.merged }

// CyclicShiftE shifts by a per-dimension offset with wrap-around.
type CyclicShiftE struct {
	Shape  tensor.Shape
	Offset []int
}

// UnpaddedShiftE shifts by a per-dimension offset; vacated positions are
// zero.
type UnpaddedShiftE struct {
	Shape  tensor.Shape
	Offset []int
}

// RotateE rotates the raw chunk slots by Shift.
type RotateE struct {
	Shape tensor.Shape
	Shift int
}

// ChetRepackE repacks into the default row-major layout.
type ChetRepackE struct {
	Shape tensor.Shape
}

// BootstrapE is an explicit frontend bootstrap request.
type BootstrapE struct {
	Shape        tensor.Shape
	UsableLevels fhe.Level
}

// StrideOutputShape returns the shape of a strided tensor. Panics when a
// stride is not a power of two or exceeds its dimension.
func StrideOutputShape(shape tensor.Shape, strides []int) tensor.Shape {
	if len(strides) != shape.DimensionCount() {
		panic(fmt.Sprintf("top: %d strides for %d dimensions", len(strides), shape.DimensionCount()))
	}
	dims := shape.Dims()
	for d, stride := range strides {
		if !utils.IsPowerOfTwo(stride) {
			panic(fmt.Sprintf("top: stride %d is not a power of two", stride))
		}
		if stride > dims[d] {
			panic(fmt.Sprintf("top: stride %d exceeds dimension of size %d", stride, dims[d]))
		}
		dims[d] = (dims[d] + stride - 1) / stride
	}
	return tensor.NewShape(dims...)
}

// ReorderedShape permutes shape by perm. Panics when perm is not a
// permutation of the dimensions.
func ReorderedShape(shape tensor.Shape, perm []int) tensor.Shape {
	if len(perm) != shape.DimensionCount() {
		panic(fmt.Sprintf("top: permutation of length %d for %d dimensions", len(perm), shape.DimensionCount()))
	}
	seen := make([]bool, len(perm))
	dims := make([]int, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			panic(fmt.Sprintf("top: invalid dimension permutation %v", perm))
		}
		seen[p] = true
		dims[i] = shape.Dim(p)
	}
	return tensor.NewShape(dims...)
}

func (e InputE) TypeName() string        { return TypeInputC }
func (e OutputE) TypeName() string       { return TypeOutputC }
func (e AddCCE) TypeName() string        { return TypeAddCC }
func (e MulCCE) TypeName() string        { return TypeMulCC }
func (e AddCPE) TypeName() string        { return TypeAddCP }
func (e MulCPE) TypeName() string        { return TypeMulCP }
func (e AddCSE) TypeName() string        { return TypeAddCS }
func (e MulCSE) TypeName() string        { return TypeMulCS }
func (e ReduceDimE) TypeName() string    { return TypeReduceDimC }
func (e ReplicateDimE) TypeName() string { return TypeReplicateDimC }
func (e ReorderDimsE) TypeName() string  { return TypeReorderDimsC }
func (e ResizeDimE) TypeName() string    { return TypeResizeDimC }
func (e DropDimE) TypeName() string      { return TypeDropDimC }
func (e InsertDimE) TypeName() string    { return TypeInsertDimC }
func (e StrideE) TypeName() string {
	if e.merged {
		return TypeMergedStrideC
	}
	return TypeStrideC
}
func (e CyclicShiftE) TypeName() string   { return TypeCyclicShiftC }
func (e UnpaddedShiftE) TypeName() string { return TypeUnpaddedShift }
func (e RotateE) TypeName() string        { return TypeRotateC }
func (e ChetRepackE) TypeName() string    { return TypeChetRepackC }
func (e BootstrapE) TypeName() string     { return TypeBootstrapC }

func (e InputE) InputShape() tensor.Shape        { return e.Shape }
func (e OutputE) InputShape() tensor.Shape       { return e.Shape }
func (e AddCCE) InputShape() tensor.Shape        { return e.Shape }
func (e MulCCE) InputShape() tensor.Shape        { return e.Shape }
func (e AddCPE) InputShape() tensor.Shape        { return e.Shape }
func (e MulCPE) InputShape() tensor.Shape        { return e.Shape }
func (e AddCSE) InputShape() tensor.Shape        { return e.Shape }
func (e MulCSE) InputShape() tensor.Shape        { return e.Shape }
func (e ReduceDimE) InputShape() tensor.Shape    { return e.Shape }
func (e ReplicateDimE) InputShape() tensor.Shape { return e.Shape }
func (e ReorderDimsE) InputShape() tensor.Shape  { return e.Shape }
func (e ResizeDimE) InputShape() tensor.Shape    { return e.Shape }
func (e DropDimE) InputShape() tensor.Shape      { return e.Shape }
func (e InsertDimE) InputShape() tensor.Shape    { return e.Shape }
func (e StrideE) InputShape() tensor.Shape       { return e.Shape }
func (e CyclicShiftE) InputShape() tensor.Shape  { return e.Shape }
func (e UnpaddedShiftE) InputShape() tensor.Shape {
	return e.Shape
}
func (e RotateE) InputShape() tensor.Shape     { return e.Shape }
func (e ChetRepackE) InputShape() tensor.Shape { return e.Shape }
func (e BootstrapE) InputShape() tensor.Shape  { return e.Shape }

func (e InputE) OutputShape() tensor.Shape  { return e.Shape }
func (e OutputE) OutputShape() tensor.Shape { return e.Shape }
func (e AddCCE) OutputShape() tensor.Shape  { return e.Shape }
func (e MulCCE) OutputShape() tensor.Shape  { return e.Shape }
func (e AddCPE) OutputShape() tensor.Shape  { return e.Shape }
func (e MulCPE) OutputShape() tensor.Shape  { return e.Shape }
func (e AddCSE) OutputShape() tensor.Shape  { return e.Shape }
func (e MulCSE) OutputShape() tensor.Shape  { return e.Shape }
func (e ReduceDimE) OutputShape() tensor.Shape {
	return e.Shape.WithDim(e.Dim, 1)
}
func (e ReplicateDimE) OutputShape() tensor.Shape {
	return e.Shape.WithDim(e.Dim, e.Shape.Dim(e.Dim)*e.Multiple)
}
func (e ReorderDimsE) OutputShape() tensor.Shape {
	return ReorderedShape(e.Shape, e.Perm)
}
func (e ResizeDimE) OutputShape() tensor.Shape { return e.OutShape }
func (e DropDimE) OutputShape() tensor.Shape   { return e.Shape.DropDim(e.Dim) }
func (e InsertDimE) OutputShape() tensor.Shape { return e.Shape.InsertDim(e.Dim) }
func (e StrideE) OutputShape() tensor.Shape {
	return StrideOutputShape(e.Shape, e.Strides)
}
func (e CyclicShiftE) OutputShape() tensor.Shape   { return e.Shape }
func (e UnpaddedShiftE) OutputShape() tensor.Shape { return e.Shape }
func (e RotateE) OutputShape() tensor.Shape        { return e.Shape }
func (e ChetRepackE) OutputShape() tensor.Shape    { return e.Shape }
func (e BootstrapE) OutputShape() tensor.Shape     { return e.Shape }

func (e InputE) CopyNew() Embryo        { return e }
func (e OutputE) CopyNew() Embryo       { return e }
func (e AddCCE) CopyNew() Embryo        { return e }
func (e MulCCE) CopyNew() Embryo        { return e }
func (e AddCPE) CopyNew() Embryo        { return e }
func (e MulCPE) CopyNew() Embryo        { return e }
func (e AddCSE) CopyNew() Embryo        { return e }
func (e MulCSE) CopyNew() Embryo        { return e }
func (e ReduceDimE) CopyNew() Embryo    { return e }
func (e ReplicateDimE) CopyNew() Embryo { return e }
func (e ReorderDimsE) CopyNew() Embryo {
	e.Perm = slices.Clone(e.Perm)
	return e
}
func (e ResizeDimE) CopyNew() Embryo { return e }
func (e DropDimE) CopyNew() Embryo   { return e }
func (e InsertDimE) CopyNew() Embryo { return e }
func (e StrideE) CopyNew() Embryo {
	e.Strides = slices.Clone(e.Strides)
	return e
}
func (e CyclicShiftE) CopyNew() Embryo {
	e.Offset = slices.Clone(e.Offset)
	return e
}
func (e UnpaddedShiftE) CopyNew() Embryo {
	e.Offset = slices.Clone(e.Offset)
	return e
}
func (e RotateE) CopyNew() Embryo     { return e }
func (e ChetRepackE) CopyNew() Embryo { return e }
func (e BootstrapE) CopyNew() Embryo  { return e }

func (e InputE) Lower(in, out tensor.Layout) TOp {
	return &TInputC{Layout: out, Name: e.Name, LogScale: e.LogScale}
}
func (e OutputE) Lower(in, out tensor.Layout) TOp {
	return &TOutputC{Layout: out, Name: e.Name}
}
func (e AddCCE) Lower(in, out tensor.Layout) TOp { return &TAddCC{Layout: out} }
func (e MulCCE) Lower(in, out tensor.Layout) TOp { return &TMulCC{Layout: out} }
func (e AddCPE) Lower(in, out tensor.Layout) TOp {
	return &TAddCP{Layout: out, PtName: e.PtName, PtLogScale: e.LogScale}
}
func (e MulCPE) Lower(in, out tensor.Layout) TOp {
	return &TMulCP{Layout: out, PtName: e.PtName, PtLogScale: e.LogScale}
}
func (e AddCSE) Lower(in, out tensor.Layout) TOp {
	return &TAddCS{Layout: out, Scalar: e.Scalar}
}
func (e MulCSE) Lower(in, out tensor.Layout) TOp {
	return &TMulCS{Layout: out, Scalar: e.Scalar}
}
func (e ReduceDimE) Lower(in, out tensor.Layout) TOp {
	return &TReduceDimC{In: in, Out: out, Dim: e.Dim}
}
func (e ReplicateDimE) Lower(in, out tensor.Layout) TOp {
	return &TReplicateDimC{In: in, Out: out, Dim: e.Dim, Multiple: e.Multiple}
}
func (e ReorderDimsE) Lower(in, out tensor.Layout) TOp {
	return &TReorderDimsC{In: in, Out: out, Perm: slices.Clone(e.Perm)}
}
func (e ResizeDimE) Lower(in, out tensor.Layout) TOp {
	return &TResizeDimC{In: in, Out: out}
}
func (e DropDimE) Lower(in, out tensor.Layout) TOp {
	return &TDropDimC{In: in, Out: out, Dim: e.Dim}
}
func (e InsertDimE) Lower(in, out tensor.Layout) TOp {
	return &TInsertDimC{In: in, Out: out, Dim: e.Dim}
}
func (e StrideE) Lower(in, out tensor.Layout) TOp {
	return &TStrideC{In: in, Out: out, Strides: slices.Clone(e.Strides)}
}
func (e CyclicShiftE) Lower(in, out tensor.Layout) TOp {
	return &TCyclicShiftC{In: in, Out: out, Offset: slices.Clone(e.Offset)}
}
func (e UnpaddedShiftE) Lower(in, out tensor.Layout) TOp {
	return &TUnpaddedShiftC{In: in, Out: out, Offset: slices.Clone(e.Offset)}
}
func (e RotateE) Lower(in, out tensor.Layout) TOp {
	return &TRotateC{Layout: out, Shift: e.Shift}
}
func (e ChetRepackE) Lower(in, out tensor.Layout) TOp {
	return &TChetRepackC{In: in, Out: out}
}
func (e BootstrapE) Lower(in, out tensor.Layout) TOp {
	return &TBootstrapC{Layout: out, UsableLevels: e.UsableLevels}
}
