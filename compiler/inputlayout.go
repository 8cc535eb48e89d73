package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/top"
)

// inputLayoutPass rewrites an input to produce a layout directly when every
// one of its consumers is a conversion to that same layout, then deletes
// the conversions.
type inputLayoutPass struct{}

func (inputLayoutPass) Name() string { return "input_layout_pass" }

func (inputLayoutPass) Do(in *dag.Dag[top.TOp]) (*dag.Dag[top.TOp], error) {
	out := dag.CloneFromAncestor(in)
	for _, input := range out.Inputs() {
		children := input.Children()
		if len(children) == 0 {
			continue
		}
		allConversions := true
		for _, child := range children {
			if _, ok := child.Value().(*top.TLayoutConversionC); !ok {
				allConversions = false
				break
			}
		}
		if !allConversions {
			continue
		}
		newLayout := children[0].Value().OutputLayout()
		input.Value().SetLayouts(newLayout, newLayout)
		for _, child := range children {
			if child.Value().OutputLayout().Equal(newLayout) {
				dag.RemoveNode(child)
			} else {
				child.Value().SetLayouts(newLayout, child.Value().OutputLayout())
			}
		}
	}
	return out, nil
}
