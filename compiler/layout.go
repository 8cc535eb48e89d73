package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/top"
	"github.com/tuneinsight/tensorc/utils"
)

// fillGaps repopulates gap positions of the chunk bits from the layout's
// tensor-offset bit pool, preferring to extend an existing contiguous block
// of a dimension.
func fillGaps(layout tensor.Layout) tensor.Layout {
	bits := layout.ChunkBits()
	var pool []tensor.DimensionBit
	for _, b := range layout.TensorOffsetBits() {
		if !b.IsGap() {
			pool = append(pool, b.DimensionBit())
		}
	}
	take := func(want tensor.DimensionBit) bool {
		for i, db := range pool {
			if db == want {
				pool = append(pool[:i], pool[i+1:]...)
				return true
			}
		}
		return false
	}

	// Extend contiguous blocks first.
	for i := 1; i < len(bits); i++ {
		if bits[i].IsGap() && !bits[i-1].IsGap() {
			prev := bits[i-1].DimensionBit()
			continuation := tensor.DimensionBit{Dimension: prev.Dimension, BitIndex: prev.BitIndex + 1}
			if take(continuation) {
				bits[i] = tensor.Bit(continuation.Dimension, continuation.BitIndex)
			}
		}
	}

	// Consume the lowest remaining pool bits into the remaining gaps, in
	// position order.
	for i := 0; i < len(bits) && len(pool) > 0; i++ {
		if bits[i].IsGap() {
			db := pool[0]
			pool = pool[1:]
			bits[i] = tensor.Bit(db.Dimension, db.BitIndex)
		}
	}
	return tensor.NewLayout(layout.GetShape(), layout.ChunkSize(), bits)
}

// strideOutputLayout lowers each surviving bit by the stride's log2 and
// gaps the bits the stride drops.
func strideOutputLayout(in tensor.Layout, strides []int, outShape tensor.Shape) tensor.Layout {
	bits := in.ChunkBits()
	for i, b := range bits {
		if b.IsGap() {
			continue
		}
		db := b.DimensionBit()
		stride := strides[db.Dimension]
		if 1<<db.BitIndex < stride {
			bits[i] = tensor.Gap()
		} else {
			bits[i] = tensor.Bit(db.Dimension, db.BitIndex-utils.CeilLog2(stride))
		}
	}
	return tensor.NewLayout(outShape, in.ChunkSize(), bits)
}

// resizeOutputLayout gaps every bit that no longer fits the output shape.
func resizeOutputLayout(in tensor.Layout, outShape tensor.Shape) tensor.Layout {
	bits := in.ChunkBits()
	for i, b := range bits {
		if b.IsGap() {
			continue
		}
		db := b.DimensionBit()
		if outShape.Dim(db.Dimension) <= 1<<db.BitIndex {
			bits[i] = tensor.Gap()
		}
	}
	return tensor.NewLayout(outShape, in.ChunkSize(), bits)
}

// relabelDims rewrites each bit's dimension through rename; rename returns
// the new dimension of an old one.
func relabelDims(in tensor.Layout, outShape tensor.Shape, rename func(int) int) tensor.Layout {
	bits := in.ChunkBits()
	for i, b := range bits {
		if b.IsGap() {
			continue
		}
		db := b.DimensionBit()
		bits[i] = tensor.Bit(rename(db.Dimension), db.BitIndex)
	}
	return tensor.NewLayout(outShape, in.ChunkSize(), bits)
}

func reorderOutputLayout(in tensor.Layout, perm []int, outShape tensor.Shape) tensor.Layout {
	inverse := make(map[int]int, len(perm))
	for newDim, oldDim := range perm {
		inverse[oldDim] = newDim
	}
	return relabelDims(in, outShape, func(d int) int { return inverse[d] })
}

func dropDimOutputLayout(in tensor.Layout, dim int, outShape tensor.Shape) tensor.Layout {
	return relabelDims(in, outShape, func(d int) int {
		if d > dim {
			return d - 1
		}
		return d
	})
}

func insertDimOutputLayout(in tensor.Layout, dim int, outShape tensor.Shape) tensor.Layout {
	return relabelDims(in, outShape, func(d int) int {
		if d >= dim {
			return d + 1
		}
		return d
	})
}

// layoutPolicy assigns the default layout of inputs and the output layout
// of every embryo operator.
type layoutPolicy interface {
	Name() string
	DefaultLayout(shape tensor.Shape, chunkSize tensor.ChunkSize) tensor.Layout
	OutputLayout(e top.Embryo, in tensor.Layout) tensor.Layout
}

// fillGapsPolicy derives output layouts from input layouts and refills the
// gaps operators punch into them.
type fillGapsPolicy struct{}

func (fillGapsPolicy) Name() string { return "fill_gaps_layout_pass" }

func (fillGapsPolicy) DefaultLayout(shape tensor.Shape, chunkSize tensor.ChunkSize) tensor.Layout {
	return tensor.RowMajorLayout(shape, chunkSize)
}

func (fillGapsPolicy) OutputLayout(e top.Embryo, in tensor.Layout) tensor.Layout {
	switch e := e.(type) {
	case top.ReorderDimsE:
		return reorderOutputLayout(in, e.Perm, e.OutputShape())
	case top.ReduceDimE:
		return fillGaps(resizeOutputLayout(in, e.OutputShape()))
	case top.ReplicateDimE:
		return fillGaps(resizeOutputLayout(in, e.OutputShape()))
	case top.ResizeDimE:
		return fillGaps(resizeOutputLayout(in, e.OutShape))
	case top.StrideE:
		return strideOutputLayout(in, e.Strides, e.OutputShape())
	case top.DropDimE:
		return dropDimOutputLayout(in, e.Dim, e.OutputShape())
	case top.InsertDimE:
		return insertDimOutputLayout(in, e.Dim, e.OutputShape())
	}
	return in
}

// chetPolicy assigns the row-major layout everywhere and never fills gaps.
type chetPolicy struct{}

func (chetPolicy) Name() string { return "chet_layout_pass" }

func (chetPolicy) DefaultLayout(shape tensor.Shape, chunkSize tensor.ChunkSize) tensor.Layout {
	return tensor.RowMajorLayout(shape, chunkSize)
}

func (chetPolicy) OutputLayout(e top.Embryo, in tensor.Layout) tensor.Layout {
	switch e := e.(type) {
	case top.ReorderDimsE:
		return reorderOutputLayout(in, e.Perm, e.OutputShape())
	case top.ReduceDimE:
		return resizeOutputLayout(in, e.OutputShape())
	case top.ReplicateDimE:
		return resizeOutputLayout(in, e.OutputShape())
	case top.ResizeDimE:
		return resizeOutputLayout(in, e.OutShape)
	case top.StrideE:
		return strideOutputLayout(in, e.Strides, e.OutputShape())
	case top.DropDimE:
		return dropDimOutputLayout(in, e.Dim, e.OutputShape())
	case top.InsertDimE:
		return insertDimOutputLayout(in, e.Dim, e.OutputShape())
	case top.ChetRepackE:
		return tensor.RowMajorLayout(e.Shape, in.ChunkSize())
	}
	return in
}

// addLayoutConversion appends a conversion node after node unless the
// layouts already agree.
func addLayoutConversion(d *dag.Dag[top.TOp], node *dag.Node[top.TOp], out tensor.Layout) *dag.Node[top.TOp] {
	if node.Value().OutputLayout().Equal(out) {
		return node
	}
	conv := &top.TLayoutConversionC{In: node.Value().OutputLayout(), Out: out}
	return d.AddNode(top.TOp(conv), []*dag.Node[top.TOp]{node}, node.Ancestors()...)
}

func allLayoutsMatch(nodes []*dag.Node[top.TOp]) bool {
	for _, n := range nodes {
		if !n.Value().OutputLayout().Equal(nodes[0].Value().OutputLayout()) {
			return false
		}
	}
	return true
}

// hasLinearChainToInput walks single-use linear chains upward and reports
// whether they terminate in an input.
func hasLinearChainToInput(node *dag.Node[top.TOp]) bool {
	for len(node.Children()) <= 1 && len(node.Parents()) == 1 {
		node = node.Parents()[0]
	}
	_, ok := node.Value().(*top.TInputC)
	return ok
}

// matchLayouts converts operands to a common layout. When exactly one
// operand sits on a linear chain up to an input, that operand is converted
// (the input-layout rewrite will then absorb the conversion); otherwise the
// second operand converts to the first.
func matchLayouts(d *dag.Dag[top.TOp], parents []*dag.Node[top.TOp]) []*dag.Node[top.TOp] {
	if allLayoutsMatch(parents) {
		return parents
	}
	if len(parents) != 2 {
		ids := make([]int, len(parents))
		for i, p := range parents {
			ids[i] = p.ID()
		}
		panic(passErr("layout_pass", KindLayoutMismatch, ids, "cannot match layouts of %d operands", len(parents)))
	}
	matchTo, convert := parents[1], parents[0]
	if hasLinearChainToInput(parents[1]) {
		matchTo, convert = parents[0], parents[1]
	}
	converted := addLayoutConversion(d, convert, matchTo.Value().OutputLayout())
	if parents[0] == convert {
		return []*dag.Node[top.TOp]{converted, matchTo}
	}
	return []*dag.Node[top.TOp]{matchTo, converted}
}

// layoutPass lowers the embryo DAG into a TOp DAG, assigning layouts and
// inserting conversions where operand layouts disagree.
type layoutPass struct {
	ctx              fhe.Context
	policy           layoutPolicy
	ignoreChetRepack bool
	rowMajorHack     bool
}

func (p layoutPass) Name() string { return p.policy.Name() }

func (p layoutPass) Do(in *dag.Dag[top.Embryo]) (*dag.Dag[top.TOp], error) {
	chunkSize := p.ctx.ChunkSize()

	if p.ignoreChetRepack {
		for _, n := range in.TopologicalOrder() {
			if _, ok := n.Value().(top.ChetRepackE); ok {
				dag.RemoveNode(n)
			}
		}
	}

	out := dag.New[top.TOp]()
	oldToNew := map[*dag.Node[top.Embryo]]*dag.Node[top.TOp]{}
	for _, old := range in.TopologicalOrder() {
		parents := make([]*dag.Node[top.TOp], 0, len(old.Parents()))
		for _, op := range old.Parents() {
			parents = append(parents, oldToNew[op])
		}
		parents = matchLayouts(out, parents)

		var inLayout tensor.Layout
		if _, ok := old.Value().(top.InputE); ok {
			inLayout = p.policy.DefaultLayout(old.Value().OutputShape(), chunkSize)
		} else {
			inLayout = parents[0].Value().OutputLayout()
		}
		outLayout := p.policy.OutputLayout(old.Value(), inLayout)
		node := out.AddNode(old.Value().Lower(inLayout, outLayout), parents, old.ID())
		oldToNew[old] = node
	}

	// Turn chet repacks into layout conversions so the decomposer can chew
	// on them.
	if p.rowMajorHack {
		for _, n := range out.TopologicalOrder() {
			repack, ok := n.Value().(*top.TChetRepackC)
			if !ok {
				continue
			}
			if repack.In.Equal(repack.Out) {
				dag.RemoveNode(n)
			} else {
				n.SetValue(top.TOp(&top.TLayoutConversionC{In: repack.In, Out: repack.Out}))
			}
		}
	}
	return out, nil
}
