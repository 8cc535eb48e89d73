package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/top"
)

// conversionDecomposerPass splits any layout conversion whose tentacle
// estimate exceeds the configured maximum into a chain of conversions,
// resolving one high-bit discrepancy at a time.
type conversionDecomposerPass struct {
	maxTentacles int
}

func (conversionDecomposerPass) Name() string { return "conversion_decomposer_pass" }

// nextIntermediate resolves the highest discrepant chunk bit of cur toward
// target.
func nextIntermediate(cur, target tensor.Layout) (tensor.Layout, bool) {
	curBits := cur.ChunkBits()
	targetBits := target.ChunkBits()
	for p := len(curBits) - 1; p >= 0; p-- {
		if curBits[p] != targetBits[p] {
			curBits[p] = targetBits[p]
			return tensor.NewLayout(cur.GetShape(), cur.ChunkSize(), curBits), true
		}
	}
	return tensor.Layout{}, false
}

func (d conversionDecomposerPass) Do(in *dag.Dag[top.TOp]) (*dag.Dag[top.TOp], error) {
	out := dag.CloneFromAncestor(in)
	for _, node := range out.TopologicalOrder() {
		conv, ok := node.Value().(*top.TLayoutConversionC)
		if !ok {
			continue
		}
		parent := node.Parents()[0]
		cur := conv.In
		for tensor.ConversionTentacles(cur, conv.Out) > d.maxTentacles {
			mid, ok := nextIntermediate(cur, conv.Out)
			if !ok || mid.Equal(conv.Out) {
				break
			}
			step := &top.TLayoutConversionC{In: cur, Out: mid}
			stepNode := out.AddNode(top.TOp(step), []*dag.Node[top.TOp]{parent}, node.Ancestors()...)
			dag.RemoveParentChildEdge(parent, node)
			dag.AddParentChildEdge(stepNode, node)
			node.Value().SetLayouts(mid, conv.Out)
			parent = stepNode
			cur = mid
		}
	}
	return out, nil
}
