package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/top"
	"github.com/tuneinsight/tensorc/utils"
)

// nodeLogScale computes the output log scale of an operator from its
// parents' scales.
func nodeLogScale(op top.TOp, parentScales []fhe.LogScale, ctLogScale fhe.LogScale) fhe.LogScale {
	scaleValues := make([]int, len(parentScales))
	for i, s := range parentScales {
		scaleValues[i] = s.Value()
	}
	switch op := op.(type) {
	case *top.TInputC:
		return op.LogScale
	case *top.TAddCC:
		return fhe.LogScale(utils.MaxSlice(scaleValues))
	case *top.TAddCP:
		return fhe.LogScale(utils.MaxSlice([]int{scaleValues[0], op.PtLogScale.Value()}))
	case *top.TAddCS:
		return fhe.LogScale(utils.MaxSlice([]int{scaleValues[0], op.Scalar.LogScale.Value()}))
	case *top.TMulCC:
		return fhe.LogScale(utils.SumSlice(scaleValues))
	}
	return parentScales[0] + op.AddedLogScale() +
		fhe.LogScale(op.BackendMaskDepth()*ctLogScale.Value())
}

// waterlineRescale appends rescale nodes below node until its scale drops
// under twice the ciphertext scale.
func waterlineRescale(d *dag.Dag[top.Scaled], node *dag.Node[top.Scaled], ctLogScale fhe.LogScale) *dag.Node[top.Scaled] {
	rescaled := node
	for scale := node.Value().LogScale; scale.Value() >= 2*ctLogScale.Value(); scale -= ctLogScale {
		op := &top.TRescaleC{
			Layout: rescaled.Value().Op.OutputLayout(),
			Amount: ctLogScale,
		}
		rescaled = d.AddNode(
			top.Scaled{Op: op, LogScale: scale - ctLogScale},
			[]*dag.Node[top.Scaled]{rescaled}, node.Ancestors()...)
	}
	return rescaled
}

// rescalingPass assigns every node a log scale and inserts rescales so no
// operand's scale reaches twice the ciphertext scale.
type rescalingPass struct {
	ctx fhe.Context
}

func (rescalingPass) Name() string { return "waterline_rescale" }

func (p rescalingPass) Do(in *dag.Dag[top.TOp]) (*dag.Dag[top.Scaled], error) {
	out := dag.New[top.Scaled]()
	oldToNew := map[*dag.Node[top.TOp]]*dag.Node[top.Scaled]{}
	for _, old := range in.TopologicalOrder() {
		parents := make([]*dag.Node[top.Scaled], 0, len(old.Parents()))
		scales := make([]fhe.LogScale, 0, len(old.Parents()))
		for _, op := range old.Parents() {
			parents = append(parents, oldToNew[op])
			scales = append(scales, oldToNew[op].Value().LogScale)
		}
		scale := nodeLogScale(old.Value(), scales, p.ctx.LogScale())
		node := out.AddNode(
			top.Scaled{Op: old.Value().CopyNew(), LogScale: scale},
			parents, old.ID())
		oldToNew[old] = waterlineRescale(out, node, p.ctx.LogScale())
	}
	return out, nil
}
