package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/top"
)

// overlayLevelInfo recomputes a node's level info, reading parent levels
// through the overlay.
func overlayLevelInfo(n *leveledNode, overlay map[*leveledNode]fhe.LevelInfo) (fhe.LevelInfo, bool) {
	read := func(p *leveledNode) fhe.LevelInfo {
		if li, ok := overlay[p]; ok {
			return li
		}
		return p.Value().Info
	}
	switch n.Value().Op.(type) {
	case *top.TBootstrapC:
		return n.Value().Info, true
	case *top.TRescaleC:
		parent := read(n.Parents()[0])
		if parent.Level <= fhe.MinLevel {
			return fhe.LevelInfo{}, false
		}
		return fhe.LevelInfo{Level: parent.Level - 1, LogScale: n.Value().Info.LogScale}, true
	}
	parents := n.Parents()
	min := read(parents[0]).Level
	for _, p := range parents[1:] {
		if l := read(p).Level; l < min {
			min = l
		}
	}
	return fhe.LevelInfo{Level: min, LogScale: n.Value().Info.LogScale}, true
}

// tryPrune hypothesises the removal of one bootstrap: the changed level
// infos are propagated through an overlay until they either settle or
// violate the minimum level. Only a fully successful walk commits.
func tryPrune(boot *leveledNode) bool {
	overlay := map[*leveledNode]fhe.LevelInfo{
		boot: boot.Parents()[0].Value().Info,
	}
	stack := []*leveledNode{}
	for _, c := range boot.Children() {
		stack = append(stack, c)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		li, ok := overlayLevelInfo(n, overlay)
		if !ok {
			return false
		}
		changed := li != n.Value().Info
		if prev, seen := overlay[n]; seen && prev == li {
			continue
		}
		overlay[n] = li
		if changed {
			for _, c := range n.Children() {
				stack = append(stack, c)
			}
		}
	}

	// Commit: apply the overlay, then splice the bootstrap out.
	for n, li := range overlay {
		if n == boot {
			continue
		}
		v := n.Value()
		v.Info = li
		n.SetValue(v)
	}
	dag.RemoveNode(boot)
	return true
}

// prunePass removes bootstrap nodes whose removal provably keeps every
// descendant at or above the minimum level. Shortcut bootstraps are tried
// first, then frontier bootstraps, then unmarked ones.
type prunePass struct{}

func (prunePass) Name() string { return "bootstrap_pruning_pass" }

func (prunePass) Do(in *dag.Dag[top.Leveled]) (*dag.Dag[top.Leveled], error) {
	out := dag.CloneFromAncestor(in)
	collect := func(mark top.ShortcutMark) []*leveledNode {
		var nodes []*leveledNode
		for _, n := range out.TopologicalOrder() {
			if op, ok := n.Value().Op.(*top.TBootstrapC); ok && op.Shortcut == mark {
				nodes = append(nodes, n)
			}
		}
		return nodes
	}
	for _, mark := range []top.ShortcutMark{top.ShortcutYes, top.ShortcutNo, top.ShortcutUnmarked} {
		for _, boot := range collect(mark) {
			tryPrune(boot)
		}
	}
	return out, nil
}
