package compiler

import (
	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
)

// requiredLevel is the level a parent must hold to satisfy one child.
func requiredLevel(child *dag.Node[ctop.CtOp]) fhe.Level {
	if _, ok := child.Value().(ctop.RescaleC); ok {
		return child.Value().LevelInfo().Level + 1
	}
	return child.Value().LevelInfo().Level
}

// levelMinimizationPass lowers each ct operator's level to the maximum its
// children need, in reverse topological order. Sources of the backend's
// level budget (outputs and bootstraps keep their recorded levels).
type levelMinimizationPass struct{}

func (levelMinimizationPass) Name() string { return "level_minimization_pass" }

func (levelMinimizationPass) Do(in *ctop.Program) (*ctop.Program, error) {
	out := in.CloneFromAncestor()
	for _, node := range out.Dag().ReverseTopologicalOrder() {
		children := node.Children()
		if len(children) == 0 {
			continue
		}
		if _, ok := node.Value().(ctop.BootstrapC); ok {
			continue
		}
		needed := requiredLevel(children[0])
		for _, child := range children[1:] {
			if l := requiredLevel(child); l > needed {
				needed = l
			}
		}
		li := node.Value().LevelInfo()
		if needed < li.Level {
			node.SetValue(node.Value().WithLevelInfo(fhe.LevelInfo{Level: needed, LogScale: li.LogScale}))
		}
	}
	return out, nil
}
