package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/top"
)

// inverseLayout answers: for op to produce the given output layout, which
// input layout must it receive? The second return value is false for ops
// with no invertible layout rule (strides and shifts mask slots away, so
// hoisting a conversion across them is refused).
func inverseLayout(op top.TOp, out tensor.Layout) (tensor.Layout, bool) {
	switch op := op.(type) {
	case *top.TReorderDimsC:
		inverse := make([]int, len(op.Perm))
		for i, p := range op.Perm {
			inverse[p] = i
		}
		return reorderOutputLayout(out, inverse, op.In.GetShape()), true
	case *top.TReplicateDimC:
		return fillGaps(resizeOutputLayout(out, op.In.GetShape())), true
	case *top.TReduceDimC:
		return fillGaps(resizeOutputLayout(out, op.In.GetShape())), true
	case *top.TResizeDimC:
		return fillGaps(resizeOutputLayout(out, op.In.GetShape())), true
	case *top.TDropDimC:
		return insertDimOutputLayout(out, op.Dim, op.In.GetShape()), true
	case *top.TInsertDimC:
		return dropDimOutputLayout(out, op.Dim, op.In.GetShape()), true
	case *top.TStrideC:
		return tensor.Layout{}, false
	case *top.TCyclicShiftC, *top.TUnpaddedShiftC:
		return tensor.Layout{}, false
	case *top.TInputC, *top.TLayoutConversionC:
		return tensor.Layout{}, false
	}
	return out, true
}

// swappedLayouts computes the layouts the conversion and its parent would
// carry after a swap.
func swappedLayouts(conv *dag.Node[top.TOp]) (newConvIn, newConvOut tensor.Layout, ok bool) {
	parent := conv.Parents()[0]
	parentIn, ok := inverseLayout(parent.Value(), conv.Value().OutputLayout())
	if !ok {
		return tensor.Layout{}, tensor.Layout{}, false
	}
	grandparent := parent.Parents()[0]
	return grandparent.Value().OutputLayout(), parentIn, true
}

func isHoistableConversion(node *dag.Node[top.TOp]) bool {
	conv, ok := node.Value().(*top.TLayoutConversionC)
	if !ok {
		return false
	}
	parents := node.Parents()
	if len(parents) != 1 || len(parents[0].Children()) != 1 {
		return false
	}
	parent := parents[0]
	if len(parent.Parents()) != 1 {
		return false
	}
	if _, isInput := parent.Value().(*top.TInputC); isInput {
		return false
	}
	newIn, newOut, ok := swappedLayouts(node)
	if !ok {
		return false
	}
	// The swap applies only when it does not increase the tentacle
	// estimate.
	return tensor.ConversionTentacles(newIn, newOut) <= tensor.ConversionTentacles(conv.In, conv.Out)
}

func swapConversionWithParent(node *dag.Node[top.TOp]) *dag.Node[top.TOp] {
	parent := node.Parents()[0]
	newConvIn, newConvOut, _ := swappedLayouts(node)
	newParentOut := node.Value().OutputLayout()

	node.Value().SetLayouts(newConvIn, newConvOut)
	parent.Value().SetLayouts(newConvOut, newParentOut)
	dag.SwapParentAndChild(parent, node)
	return node
}

// hoistingPass pushes layout conversions toward the inputs while the swap
// does not get more expensive, iterating each chain to a fixed point.
type hoistingPass struct{}

func (hoistingPass) Name() string { return "layout_hoisting_pass" }

func (hoistingPass) Do(in *dag.Dag[top.TOp]) (*dag.Dag[top.TOp], error) {
	out := dag.CloneFromAncestor(in)
	for _, node := range out.TopologicalOrder() {
		for isHoistableConversion(node) {
			node = swapConversionWithParent(node)
		}
	}
	return out, nil
}
