package compiler

import (
	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/top"
)

// basicCtOpPass expands every leveled tensor operator into its ciphertext
// realisation, producing the ct program and the ancestor map from leveled
// nodes to ct nodes.
type basicCtOpPass struct {
	ctx fhe.Context
}

func (basicCtOpPass) Name() string { return "basic_ct_op_pass" }

func (p basicCtOpPass) Do(in *dag.Dag[top.Leveled]) (*ctop.Program, error) {
	program := ctop.NewProgram(p.ctx)
	oldToNew := map[*leveledNode]top.LaidOutCt{}
	newToOld := map[*dag.Node[ctop.CtOp]]*leveledNode{}

	for _, node := range in.TopologicalOrder() {
		inputs := make([]top.LaidOutCt, 0, len(node.Parents()))
		for _, parent := range node.Parents() {
			inputs = append(inputs, oldToNew[parent])
		}
		out, err := node.Value().Expand(program, inputs)
		if err != nil {
			return nil, passErr(p.Name(), KindLayoutMismatch, []int{node.ID()}, "%v", err)
		}
		for _, chunk := range out.Chunks() {
			newToOld[chunk.Chunk] = node
		}
		oldToNew[node] = out
	}

	// Assign ancestor ids. Orphan ct nodes (all children folded away) adopt
	// a child's ancestor when one exists; a later sweep collects the rest.
	for _, node := range program.Dag().ReverseTopologicalOrder() {
		if old, ok := newToOld[node]; ok {
			node.AddAncestor(old.ID())
			continue
		}
		for _, child := range node.Children() {
			if len(child.Ancestors()) > 0 {
				node.AddAncestor(child.Ancestors()[0])
				break
			}
		}
	}
	return program, nil
}

// dummyCtOpPass skips expansion, emitting an empty ct program. Useful when
// only the tensor-level IRs are of interest.
type dummyCtOpPass struct {
	ctx fhe.Context
}

func (dummyCtOpPass) Name() string { return "dummy_ct_op_pass" }

func (p dummyCtOpPass) Do(in *dag.Dag[top.Leveled]) (*ctop.Program, error) {
	return ctop.NewProgram(p.ctx), nil
}
