package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/top"
)

// mergeStrideChainPass fuses adjacent stride nodes into a single merged
// stride with the product strides.
type mergeStrideChainPass struct{}

func (mergeStrideChainPass) Name() string { return "merge_stride_chain_pass" }

func strideEmbryo(n *dag.Node[top.Embryo]) (top.StrideE, bool) {
	e, ok := n.Value().(top.StrideE)
	return e, ok
}

func (mergeStrideChainPass) Do(in *dag.Dag[top.Embryo]) (*dag.Dag[top.Embryo], error) {
	out := dag.CloneFromAncestor(in)
	for _, node := range out.TopologicalOrder() {
		child, ok := strideEmbryo(node)
		if !ok || len(node.Parents()) != 1 {
			continue
		}
		parentNode := node.Parents()[0]
		parent, ok := strideEmbryo(parentNode)
		if !ok || len(parentNode.Children()) != 1 || len(parentNode.Parents()) != 1 {
			continue
		}
		merged := make([]int, len(parent.Strides))
		for i := range merged {
			merged[i] = parent.Strides[i] * child.Strides[i]
		}
		mergedNode := out.AddNode(
			top.Embryo(top.NewMergedStrideE(parent.InputShape(), merged)),
			[]*dag.Node[top.Embryo]{parentNode},
			append(parentNode.Ancestors(), node.Ancestors()...)...)
		dag.InheritChildren(node, mergedNode)
		dag.DetachNode(node)
		dag.RemoveNode(parentNode)
	}
	return out, nil
}

// repackShoweringPass inserts a chet repack after every embryo node, so the
// chet layout pass can bound every operator's working layout.
type repackShoweringPass struct{}

func (repackShoweringPass) Name() string { return "repack_showering_pass" }

func (repackShoweringPass) Do(in *dag.Dag[top.Embryo]) (*dag.Dag[top.Embryo], error) {
	out := dag.CloneFromAncestor(in)
	for _, node := range out.TopologicalOrder() {
		if _, ok := node.Value().(top.OutputE); ok {
			continue
		}
		repack := out.AddNode(
			top.Embryo(top.ChetRepackE{Shape: node.Value().OutputShape()}),
			[]*dag.Node[top.Embryo]{node},
			node.Ancestors()...)
		for _, child := range node.Children() {
			if child == repack {
				continue
			}
			dag.ReplaceParent(child, node, repack)
		}
	}
	return out, nil
}
