package top

import (
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/tensor"
	"golang.org/x/exp/slices"
)

// TOp type names, which double as serialisation keywords.
const (
	TypeTInputC            = "TInputC"
	TypeTOutputC           = "TOutputC"
	TypeTAddCC             = "TAddCC"
	TypeTAddCP             = "TAddCP"
	TypeTAddCS             = "TAddCS"
	TypeTMulCC             = "TMulCC"
	TypeTMulCP             = "TMulCP"
	TypeTMulCS             = "TMulCS"
	TypeTReduceDimC        = "TReduceDimC"
	TypeTReplicateDimC     = "TReplicateDimC"
	TypeTReorderDimsC      = "TReorderDimsC"
	TypeTResizeDimC        = "TResizeDimC"
	TypeTDropDimC          = "TDropDimC"
	TypeTInsertDimC        = "TInsertDimC"
	TypeTStrideC           = "TStrideC"
	TypeTCyclicShiftC      = "TCyclicShiftC"
	TypeTUnpaddedShiftC    = "TUnpaddedShiftC"
	TypeTRotateC           = "TRotateC"
	TypeTRescaleC          = "TRescaleC"
	TypeTBootstrapC        = "TBootstrapC"
	TypeTLayoutConversionC = "TLayoutConversionC"
	TypeTChetRepackC       = "TChetRepackC"
)

// ShortcutMark records whether a bootstrap was placed for a shortcut edge.
type ShortcutMark int

// Shortcut markings of a bootstrap operator.
const (
	ShortcutUnmarked ShortcutMark = iota
	ShortcutNo
	ShortcutYes
)

// TInputC loads a named encrypted input tensor.
type TInputC struct {
	Layout   tensor.Layout
	Name     string
	LogScale fhe.LogScale
}

// TOutputC stores a named result tensor.
type TOutputC struct {
	Layout tensor.Layout
	Name   string
}

// TAddCC is element-wise ciphertext addition; both operands share Layout.
type TAddCC struct {
	Layout tensor.Layout
}

// TMulCC is element-wise ciphertext multiplication.
type TMulCC struct {
	Layout tensor.Layout
}

// TAddCP adds a named plaintext tensor element-wise.
type TAddCP struct {
	Layout     tensor.Layout
	PtName     string
	PtLogScale fhe.LogScale
}

// TMulCP multiplies by a named plaintext tensor element-wise.
type TMulCP struct {
	Layout     tensor.Layout
	PtName     string
	PtLogScale fhe.LogScale
}

// TAddCS adds a scalar to every element.
type TAddCS struct {
	Layout tensor.Layout
	Scalar fhe.ScaledValue
}

// TMulCS multiplies every element by a scalar.
type TMulCS struct {
	Layout tensor.Layout
	Scalar fhe.ScaledValue
}

// TReduceDimC sums over dimension Dim, leaving it with size 1.
type TReduceDimC struct {
	In  tensor.Layout
	Out tensor.Layout
	Dim int
}

// TReplicateDimC replicates dimension Dim by Multiple.
type TReplicateDimC struct {
	In       tensor.Layout
	Out      tensor.Layout
	Dim      int
	Multiple int
}

// TReorderDimsC permutes dimensions.
type TReorderDimsC struct {
	In   tensor.Layout
	Out  tensor.Layout
	Perm []int
}

// TResizeDimC crops or zero-pads dimensions.
type TResizeDimC struct {
	In  tensor.Layout
	Out tensor.Layout
}

// TDropDimC removes a size-1 dimension.
type TDropDimC struct {
	In  tensor.Layout
	Out tensor.Layout
	Dim int
}

// TInsertDimC inserts a size-1 dimension.
type TInsertDimC struct {
	In  tensor.Layout
	Out tensor.Layout
	Dim int
}

// TStrideC keeps every Strides[d]-th element of each dimension.
type TStrideC struct {
	In      tensor.Layout
	Out     tensor.Layout
	Strides []int
}

// TCyclicShiftC shifts by a per-dimension offset with wrap-around.
type TCyclicShiftC struct {
	In     tensor.Layout
	Out    tensor.Layout
	Offset []int
}

// TUnpaddedShiftC shifts by a per-dimension offset; vacated positions are
// zero.
type TUnpaddedShiftC struct {
	In     tensor.Layout
	Out    tensor.Layout
	Offset []int
}

// TRotateC rotates the raw chunk slots.
type TRotateC struct {
	Layout tensor.Layout
	Shift  int
}

// TRescaleC rescales every chunk by Amount, consuming one level.
type TRescaleC struct {
	Layout tensor.Layout
	Amount fhe.LogScale
}

// TBootstrapC bootstraps every chunk back to UsableLevels.
type TBootstrapC struct {
	Layout       tensor.Layout
	UsableLevels fhe.Level
	Shortcut     ShortcutMark
}

// TLayoutConversionC converts between two layouts of the same shape.
type TLayoutConversionC struct {
	In  tensor.Layout
	Out tensor.Layout
}

// TChetRepackC repacks into the row-major layout of its shape.
type TChetRepackC struct {
	In  tensor.Layout
	Out tensor.Layout
}

func (o *TInputC) TypeName() string            { return TypeTInputC }
func (o *TOutputC) TypeName() string           { return TypeTOutputC }
func (o *TAddCC) TypeName() string             { return TypeTAddCC }
func (o *TMulCC) TypeName() string             { return TypeTMulCC }
func (o *TAddCP) TypeName() string             { return TypeTAddCP }
func (o *TMulCP) TypeName() string             { return TypeTMulCP }
func (o *TAddCS) TypeName() string             { return TypeTAddCS }
func (o *TMulCS) TypeName() string             { return TypeTMulCS }
func (o *TReduceDimC) TypeName() string        { return TypeTReduceDimC }
func (o *TReplicateDimC) TypeName() string     { return TypeTReplicateDimC }
func (o *TReorderDimsC) TypeName() string      { return TypeTReorderDimsC }
func (o *TResizeDimC) TypeName() string        { return TypeTResizeDimC }
func (o *TDropDimC) TypeName() string          { return TypeTDropDimC }
func (o *TInsertDimC) TypeName() string        { return TypeTInsertDimC }
func (o *TStrideC) TypeName() string           { return TypeTStrideC }
func (o *TCyclicShiftC) TypeName() string      { return TypeTCyclicShiftC }
func (o *TUnpaddedShiftC) TypeName() string    { return TypeTUnpaddedShiftC }
func (o *TRotateC) TypeName() string           { return TypeTRotateC }
func (o *TRescaleC) TypeName() string          { return TypeTRescaleC }
func (o *TBootstrapC) TypeName() string        { return TypeTBootstrapC }
func (o *TLayoutConversionC) TypeName() string { return TypeTLayoutConversionC }
func (o *TChetRepackC) TypeName() string       { return TypeTChetRepackC }

func (o *TInputC) OutputLayout() tensor.Layout            { return o.Layout }
func (o *TOutputC) OutputLayout() tensor.Layout           { return o.Layout }
func (o *TAddCC) OutputLayout() tensor.Layout             { return o.Layout }
func (o *TMulCC) OutputLayout() tensor.Layout             { return o.Layout }
func (o *TAddCP) OutputLayout() tensor.Layout             { return o.Layout }
func (o *TMulCP) OutputLayout() tensor.Layout             { return o.Layout }
func (o *TAddCS) OutputLayout() tensor.Layout             { return o.Layout }
func (o *TMulCS) OutputLayout() tensor.Layout             { return o.Layout }
func (o *TReduceDimC) OutputLayout() tensor.Layout        { return o.Out }
func (o *TReplicateDimC) OutputLayout() tensor.Layout     { return o.Out }
func (o *TReorderDimsC) OutputLayout() tensor.Layout      { return o.Out }
func (o *TResizeDimC) OutputLayout() tensor.Layout        { return o.Out }
func (o *TDropDimC) OutputLayout() tensor.Layout          { return o.Out }
func (o *TInsertDimC) OutputLayout() tensor.Layout        { return o.Out }
func (o *TStrideC) OutputLayout() tensor.Layout           { return o.Out }
func (o *TCyclicShiftC) OutputLayout() tensor.Layout      { return o.Out }
func (o *TUnpaddedShiftC) OutputLayout() tensor.Layout    { return o.Out }
func (o *TRotateC) OutputLayout() tensor.Layout           { return o.Layout }
func (o *TRescaleC) OutputLayout() tensor.Layout          { return o.Layout }
func (o *TBootstrapC) OutputLayout() tensor.Layout        { return o.Layout }
func (o *TLayoutConversionC) OutputLayout() tensor.Layout { return o.Out }
func (o *TChetRepackC) OutputLayout() tensor.Layout       { return o.Out }

func (o *TInputC) SetLayouts(in, out tensor.Layout)         { o.Layout = out }
func (o *TOutputC) SetLayouts(in, out tensor.Layout)        { o.Layout = out }
func (o *TAddCC) SetLayouts(in, out tensor.Layout)          { o.Layout = out }
func (o *TMulCC) SetLayouts(in, out tensor.Layout)          { o.Layout = out }
func (o *TAddCP) SetLayouts(in, out tensor.Layout)          { o.Layout = out }
func (o *TMulCP) SetLayouts(in, out tensor.Layout)          { o.Layout = out }
func (o *TAddCS) SetLayouts(in, out tensor.Layout)          { o.Layout = out }
func (o *TMulCS) SetLayouts(in, out tensor.Layout)          { o.Layout = out }
func (o *TReduceDimC) SetLayouts(in, out tensor.Layout)     { o.In, o.Out = in, out }
func (o *TReplicateDimC) SetLayouts(in, out tensor.Layout)  { o.In, o.Out = in, out }
func (o *TReorderDimsC) SetLayouts(in, out tensor.Layout)   { o.In, o.Out = in, out }
func (o *TResizeDimC) SetLayouts(in, out tensor.Layout)     { o.In, o.Out = in, out }
func (o *TDropDimC) SetLayouts(in, out tensor.Layout)       { o.In, o.Out = in, out }
func (o *TInsertDimC) SetLayouts(in, out tensor.Layout)     { o.In, o.Out = in, out }
func (o *TStrideC) SetLayouts(in, out tensor.Layout)        { o.In, o.Out = in, out }
func (o *TCyclicShiftC) SetLayouts(in, out tensor.Layout)   { o.In, o.Out = in, out }
func (o *TUnpaddedShiftC) SetLayouts(in, out tensor.Layout) { o.In, o.Out = in, out }
func (o *TRotateC) SetLayouts(in, out tensor.Layout)        { o.Layout = out }
func (o *TRescaleC) SetLayouts(in, out tensor.Layout)       { o.Layout = out }
func (o *TBootstrapC) SetLayouts(in, out tensor.Layout)     { o.Layout = out }
func (o *TLayoutConversionC) SetLayouts(in, out tensor.Layout) {
	o.In, o.Out = in, out
}
func (o *TChetRepackC) SetLayouts(in, out tensor.Layout) { o.In, o.Out = in, out }

func (o *TInputC) AddedLogScale() fhe.LogScale         { return 0 }
func (o *TOutputC) AddedLogScale() fhe.LogScale        { return 0 }
func (o *TAddCC) AddedLogScale() fhe.LogScale          { return 0 }
func (o *TMulCC) AddedLogScale() fhe.LogScale          { return 0 }
func (o *TAddCP) AddedLogScale() fhe.LogScale          { return 0 }
func (o *TMulCP) AddedLogScale() fhe.LogScale          { return o.PtLogScale }
func (o *TAddCS) AddedLogScale() fhe.LogScale          { return 0 }
func (o *TMulCS) AddedLogScale() fhe.LogScale          { return o.Scalar.LogScale }
func (o *TReduceDimC) AddedLogScale() fhe.LogScale     { return 0 }
func (o *TReplicateDimC) AddedLogScale() fhe.LogScale  { return 0 }
func (o *TReorderDimsC) AddedLogScale() fhe.LogScale   { return 0 }
func (o *TResizeDimC) AddedLogScale() fhe.LogScale     { return 0 }
func (o *TDropDimC) AddedLogScale() fhe.LogScale       { return 0 }
func (o *TInsertDimC) AddedLogScale() fhe.LogScale     { return 0 }
func (o *TStrideC) AddedLogScale() fhe.LogScale        { return 0 }
func (o *TCyclicShiftC) AddedLogScale() fhe.LogScale   { return 0 }
func (o *TUnpaddedShiftC) AddedLogScale() fhe.LogScale { return 0 }
func (o *TRotateC) AddedLogScale() fhe.LogScale        { return 0 }
func (o *TRescaleC) AddedLogScale() fhe.LogScale {
	panic("top: TRescaleC has no added log scale")
}
func (o *TBootstrapC) AddedLogScale() fhe.LogScale        { return 0 }
func (o *TLayoutConversionC) AddedLogScale() fhe.LogScale { return 0 }
func (o *TChetRepackC) AddedLogScale() fhe.LogScale       { return 0 }

func (o *TInputC) BackendMaskDepth() int  { return 0 }
func (o *TOutputC) BackendMaskDepth() int { return 0 }
func (o *TAddCC) BackendMaskDepth() int   { return 0 }
func (o *TMulCC) BackendMaskDepth() int   { return 0 }
func (o *TAddCP) BackendMaskDepth() int   { return 0 }
func (o *TMulCP) BackendMaskDepth() int   { return 0 }
func (o *TAddCS) BackendMaskDepth() int   { return 0 }
func (o *TMulCS) BackendMaskDepth() int   { return 0 }
func (o *TReduceDimC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TReplicateDimC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TReorderDimsC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TResizeDimC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TDropDimC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TInsertDimC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TStrideC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TCyclicShiftC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TUnpaddedShiftC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, o.sources)
}
func (o *TRotateC) BackendMaskDepth() int { return 0 }
func (o *TRescaleC) BackendMaskDepth() int {
	panic("top: TRescaleC has no backend mask depth")
}
func (o *TBootstrapC) BackendMaskDepth() int { return 0 }
func (o *TLayoutConversionC) BackendMaskDepth() int {
	return 1
}
func (o *TChetRepackC) BackendMaskDepth() int {
	return gatherMaskDepth(o.In, o.Out, identitySources)
}

func (o *TInputC) CopyNew() TOp         { c := *o; return &c }
func (o *TOutputC) CopyNew() TOp        { c := *o; return &c }
func (o *TAddCC) CopyNew() TOp          { c := *o; return &c }
func (o *TMulCC) CopyNew() TOp          { c := *o; return &c }
func (o *TAddCP) CopyNew() TOp          { c := *o; return &c }
func (o *TMulCP) CopyNew() TOp          { c := *o; return &c }
func (o *TAddCS) CopyNew() TOp          { c := *o; return &c }
func (o *TMulCS) CopyNew() TOp          { c := *o; return &c }
func (o *TReduceDimC) CopyNew() TOp     { c := *o; return &c }
func (o *TReplicateDimC) CopyNew() TOp  { c := *o; return &c }
func (o *TReorderDimsC) CopyNew() TOp   { c := *o; c.Perm = slices.Clone(o.Perm); return &c }
func (o *TResizeDimC) CopyNew() TOp     { c := *o; return &c }
func (o *TDropDimC) CopyNew() TOp       { c := *o; return &c }
func (o *TInsertDimC) CopyNew() TOp     { c := *o; return &c }
func (o *TStrideC) CopyNew() TOp        { c := *o; c.Strides = slices.Clone(o.Strides); return &c }
func (o *TCyclicShiftC) CopyNew() TOp   { c := *o; c.Offset = slices.Clone(o.Offset); return &c }
func (o *TUnpaddedShiftC) CopyNew() TOp { c := *o; c.Offset = slices.Clone(o.Offset); return &c }
func (o *TRotateC) CopyNew() TOp        { c := *o; return &c }
func (o *TRescaleC) CopyNew() TOp       { c := *o; return &c }
func (o *TBootstrapC) CopyNew() TOp     { c := *o; return &c }
func (o *TLayoutConversionC) CopyNew() TOp {
	c := *o
	return &c
}
func (o *TChetRepackC) CopyNew() TOp { c := *o; return &c }
