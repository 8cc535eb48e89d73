package compiler

import (
	"github.com/montanaflynn/stats"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/top"
)

// PassStat is the node count of one executed pass.
type PassStat struct {
	Pass  string
	Nodes int
}

// ConversionStats summarises the tentacle estimates of the layout
// conversions surviving the layout optimisers.
type ConversionStats struct {
	Count  int
	Mean   float64
	Median float64
	Max    float64
}

// Report summarises a compilation for operators tuning layouts and level
// budgets.
type Report struct {
	Passes      []PassStat
	Bootstraps  int
	Conversions ConversionStats
}

func newReport(cp *CompiledProgram) Report {
	r := Report{}
	for _, rec := range cp.records {
		r.Passes = append(r.Passes, PassStat{Pass: rec.ID.String(), Nodes: rec.NodeCount})
	}
	if len(cp.LeveledDags) > 0 {
		final := cp.LeveledDags[len(cp.LeveledDags)-1]
		for _, n := range final.TopologicalOrder() {
			if _, ok := n.Value().Op.(*top.TBootstrapC); ok {
				r.Bootstraps++
			}
		}
	}
	if len(cp.LayoutDags) > 0 {
		final := cp.LayoutDags[len(cp.LayoutDags)-1]
		var tentacles []float64
		for _, n := range final.TopologicalOrder() {
			if conv, ok := n.Value().(*top.TLayoutConversionC); ok {
				tentacles = append(tentacles, float64(tensor.ConversionTentacles(conv.In, conv.Out)))
			}
		}
		if len(tentacles) > 0 {
			r.Conversions.Count = len(tentacles)
			r.Conversions.Mean, _ = stats.Mean(tentacles)
			r.Conversions.Median, _ = stats.Median(tentacles)
			r.Conversions.Max, _ = stats.Max(tentacles)
		}
	}
	return r
}
