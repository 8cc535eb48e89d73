package compiler

import (
	"fmt"

	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/top"
	"github.com/zeebo/blake3"
	"golang.org/x/exp/slices"
)

// valueNumberKey digests a node's payload together with its parent list
// (order and multiplicity included).
func valueNumberKey(node *dag.Node[top.TOp]) [32]byte {
	h := blake3.New()
	h.Write([]byte(top.Sprint(node.Value())))
	for _, p := range node.Parents() {
		fmt.Fprintf(h, "|%d", p.ID())
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func sameParents(a, b *dag.Node[top.TOp]) bool {
	aIDs := make([]int, 0, len(a.Parents()))
	for _, p := range a.Parents() {
		aIDs = append(aIDs, p.ID())
	}
	bIDs := make([]int, 0, len(b.Parents()))
	for _, p := range b.Parents() {
		bIDs = append(bIDs, p.ID())
	}
	return slices.Equal(aIDs, bIDs)
}

// valueNumberingPass merges sibling nodes with identical payloads and
// identical parent lists. The surviving node inherits the union of ancestor
// ids.
type valueNumberingPass struct{}

func (valueNumberingPass) Name() string { return "value_numbering_pass" }

func (valueNumberingPass) Do(in *dag.Dag[top.TOp]) (*dag.Dag[top.TOp], error) {
	out := dag.CloneFromAncestor(in)
	seen := map[[32]byte]*dag.Node[top.TOp]{}
	for _, node := range out.TopologicalOrder() {
		if len(node.Parents()) == 0 {
			continue
		}
		key := valueNumberKey(node)
		survivor, ok := seen[key]
		if !ok {
			seen[key] = node
			continue
		}
		// A digest hit is re-verified structurally before merging.
		if !top.Equal(survivor.Value(), node.Value()) || !sameParents(survivor, node) {
			continue
		}
		dag.InheritChildren(node, survivor)
		for _, ancestor := range node.Ancestors() {
			survivor.AddAncestor(ancestor)
		}
		dag.DetachNode(node)
	}
	return out, nil
}
