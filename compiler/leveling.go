package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/top"
)

type leveledNode = dag.Node[top.Leveled]

// nodeLevelInfo computes a node's level info from its parents'. Returns
// false when a rescale would push the level below the minimum.
func nodeLevelInfo(sc top.Scaled, parents []fhe.LevelInfo, usable fhe.Level) (fhe.LevelInfo, bool) {
	switch op := sc.Op.(type) {
	case *top.TInputC:
		return fhe.LevelInfo{Level: usable, LogScale: op.LogScale}, true
	case *top.TBootstrapC:
		return fhe.LevelInfo{Level: op.UsableLevels, LogScale: sc.LogScale}, true
	case *top.TRescaleC:
		level := parents[0].Level - 1
		return fhe.LevelInfo{Level: level, LogScale: sc.LogScale}, level >= fhe.MinLevel
	}
	min := parents[0].Level
	for _, li := range parents[1:] {
		if li.Level < min {
			min = li.Level
		}
	}
	return fhe.LevelInfo{Level: min, LogScale: sc.LogScale}, true
}

func parentLevelInfos(parents []*leveledNode) []fhe.LevelInfo {
	infos := make([]fhe.LevelInfo, len(parents))
	for i, p := range parents {
		infos[i] = p.Value().Info
	}
	return infos
}

// appendBootstrap hangs a bootstrap node below node, resetting its level to
// usable while keeping its scale.
func appendBootstrap(d *dag.Dag[top.Leveled], node *leveledNode, usable fhe.Level, mark top.ShortcutMark) *leveledNode {
	op := &top.TBootstrapC{
		Layout:       node.Value().Op.OutputLayout(),
		UsableLevels: usable,
		Shortcut:     mark,
	}
	return d.AddNode(top.Leveled{
		Op:   op,
		Info: fhe.LevelInfo{Level: usable, LogScale: node.Value().Info.LogScale},
	}, []*leveledNode{node}, node.Ancestors()...)
}

// removeScaledBootstraps strips frontend bootstrap requests before a
// leveling policy re-places them.
func removeScaledBootstraps(d *dag.Dag[top.Scaled]) {
	for _, n := range d.TopologicalOrder() {
		if _, ok := n.Value().Op.(*top.TBootstrapC); ok {
			dag.RemoveNode(n)
		}
	}
}

// noopLevelingPass assigns levels without ever bootstrapping; a program
// deeper than the usable levels fails.
type noopLevelingPass struct {
	ctx fhe.Context
}

func (noopLevelingPass) Name() string { return "noop_leveling_pass" }

func (p noopLevelingPass) Do(in *dag.Dag[top.Scaled]) (*dag.Dag[top.Leveled], error) {
	out := dag.New[top.Leveled]()
	oldToNew := map[*scaledNode]*leveledNode{}
	for _, old := range in.TopologicalOrder() {
		parents := make([]*leveledNode, 0, len(old.Parents()))
		for _, op := range old.Parents() {
			parents = append(parents, oldToNew[op])
		}
		info, ok := nodeLevelInfo(old.Value(), parentLevelInfos(parents), p.ctx.UsableLevels())
		if !ok {
			return nil, passErr(p.Name(), KindLevelUnderflow, []int{old.ID()},
				"level underflows without a bootstrap")
		}
		oldToNew[old] = out.AddNode(top.Leveled{Op: old.Value().Op.CopyNew(), Info: info},
			parents, old.ID())
	}
	return out, nil
}

// lazyLevelingPass bootstraps an operand at the last moment: whenever a
// rescale would underflow, its parent is bootstrapped first.
type lazyLevelingPass struct {
	ctx fhe.Context
	// onlyAtRepacks restricts lazy bootstraps to chet repack boundaries.
	onlyAtRepacks bool
}

func (p lazyLevelingPass) Name() string {
	if p.onlyAtRepacks {
		return "chet_lazy_bootstrapping_pass"
	}
	return "lazy_bootstrapping_pass"
}

func (p lazyLevelingPass) Do(in *dag.Dag[top.Scaled]) (*dag.Dag[top.Leveled], error) {
	removeScaledBootstraps(in)
	usable := p.ctx.UsableLevels()
	out := dag.New[top.Leveled]()
	oldToNew := map[*scaledNode]*leveledNode{}
	for _, old := range in.TopologicalOrder() {
		parents := make([]*leveledNode, 0, len(old.Parents()))
		for _, op := range old.Parents() {
			parents = append(parents, oldToNew[op])
		}
		info, ok := nodeLevelInfo(old.Value(), parentLevelInfos(parents), usable)
		if !ok {
			if p.onlyAtRepacks {
				return nil, passErr(p.Name(), KindLevelUnderflow, []int{old.ID()},
					"level underflows between repack boundaries")
			}
			parents[0] = appendBootstrap(out, parents[0], usable, top.ShortcutUnmarked)
			info, ok = nodeLevelInfo(old.Value(), parentLevelInfos(parents), usable)
			if !ok {
				return nil, passErr(p.Name(), KindLevelUnderflow, []int{old.ID()},
					"level underflows immediately after a bootstrap")
			}
		}
		node := out.AddNode(top.Leveled{Op: old.Value().Op.CopyNew(), Info: info},
			parents, old.ID())
		oldToNew[old] = node
		if p.onlyAtRepacks {
			if _, isRepack := old.Value().Op.(*top.TChetRepackC); isRepack && info.Level < usable {
				oldToNew[old] = appendBootstrap(out, node, usable, top.ShortcutUnmarked)
			}
		}
	}
	return out, nil
}
