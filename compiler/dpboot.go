package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/top"
	"golang.org/x/exp/slices"
)

// dpEntry is one cell of the bootstrap-placement dynamic program: the
// cheapest ciphertext volume bootstrapped to reach this depth, and the
// previous bootstrap depth achieving it.
type dpEntry struct {
	prev int
	cost int
}

// shortcutInfo is one shortcut candidate: the levels its survival burns at
// the next bootstrap (top) and the distance its furthest consumer reaches
// past the candidate frontier (bottom).
type shortcutInfo struct {
	node   *scaledNode
	top    int
	bottom int
}

type dpState struct {
	di *depthInfo
	L  int

	dp          []dpEntry
	levelsAt    map[int][]int
	shortcutsAt map[int][]*scaledNode
}

func (st *dpState) identityLevels() []int {
	levels := make([]int, st.L)
	for i := range levels {
		levels[i] = i + 1
	}
	return levels
}

// chainFrom returns the bootstrap depths selected on the path ending at
// depth j, ascending, with the implicit depth 0 included.
func (st *dpState) chainFrom(j int) []int {
	chain := []int{0}
	for cur := j; cur != 0; cur = st.dp[cur].prev {
		chain = append(chain, cur)
	}
	slices.Sort(chain)
	return chain
}

// previousBootDepth is the last chain depth at or before the node's
// effective depth.
func (st *dpState) previousBootDepth(n *scaledNode, chain []int) int {
	depth := st.di.NodeDepth(n)
	if !st.di.isAfterFrontier(n) {
		if depth == 0 {
			return 0
		}
		depth--
	}
	best := 0
	for _, c := range chain {
		if c <= depth && c > best {
			best = c
		}
	}
	return best
}

// nextBootDepth is the first chain depth at or after the node's effective
// depth.
func (st *dpState) nextBootDepth(n *scaledNode, chain []int) (int, bool) {
	depth := st.di.NodeDepth(n)
	if st.di.isAfterFrontier(n) {
		depth++
	}
	found := false
	best := 0
	for _, c := range chain {
		if c >= depth && (!found || c < best) {
			best = c
			found = true
		}
	}
	return best, found
}

func (st *dpState) levelsAtDepth(depth int, ok bool) []int {
	if !ok {
		return st.identityLevels()
	}
	if levels, recorded := st.levelsAt[depth]; recorded {
		return levels
	}
	return st.identityLevels()
}

func clampIndex(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// shaveLevels lowers the level budget vector to account for one surviving
// shortcut spanning bottom depths whose tail already burned top levels.
func shaveLevels(levels []int, bottom, top int) []int {
	out := slices.Clone(levels)
	for i := len(out) - bottom; i > 0; i-- {
		if limit := bottom - top + i; out[i-1] > limit {
			out[i-1] = limit
		}
	}
	return out
}

// subsetAcceptable shaves the identity budget by every shortcut of the
// subset and checks the frontier-width slot stays above the minimum level.
func (st *dpState) subsetAcceptable(subset []shortcutInfo, width int) ([]int, bool) {
	levels := st.identityLevels()
	for _, sc := range subset {
		levels = shaveLevels(levels, sc.bottom, sc.top)
	}
	idx := clampIndex(st.L-1-width, st.L-1)
	return levels, levels[idx] >= 1
}

// maxSubsetEnum is the largest shortcut set enumerated exhaustively; larger
// sets fall back to a greedy sweep.
const maxSubsetEnum = 12

// pickLargestAcceptableSubset returns the largest subset of shortcuts that
// can survive without their own bootstrap, and the shaved level budget.
func (st *dpState) pickLargestAcceptableSubset(infos []shortcutInfo, width int) (map[*scaledNode]struct{}, []int) {
	bestLevels := st.identityLevels()
	var best []shortcutInfo
	if len(infos) <= maxSubsetEnum {
		for mask := 1; mask < 1<<len(infos); mask++ {
			var subset []shortcutInfo
			for i := range infos {
				if mask>>i&1 == 1 {
					subset = append(subset, infos[i])
				}
			}
			if len(subset) <= len(best) {
				continue
			}
			if levels, ok := st.subsetAcceptable(subset, width); ok {
				best = subset
				bestLevels = levels
			}
		}
	} else {
		var subset []shortcutInfo
		for _, info := range infos {
			candidate := append(slices.Clone(subset), info)
			if levels, ok := st.subsetAcceptable(candidate, width); ok {
				subset = candidate
				bestLevels = levels
			}
		}
		best = subset
	}
	out := make(map[*scaledNode]struct{}, len(best))
	for _, sc := range best {
		out[sc.node] = struct{}{}
	}
	return out, bestLevels
}

// shortcutInfos rates every shortcut of the (j, depth) candidate window.
func (st *dpState) shortcutInfos(shortcuts []*scaledNode, j, depth int) []shortcutInfo {
	chain := st.chainFrom(j)
	infos := make([]shortcutInfo, 0, len(shortcuts))
	for _, sc := range shortcuts {
		scDepth := st.di.NodeDepth(sc)
		closest := st.previousBootDepth(sc, chain)
		next, ok := st.nextBootDepth(sc, chain)
		levels := st.levelsAtDepth(next, ok)
		idx := clampIndex(st.L-1-(scDepth-closest), st.L-1)

		// The pessimistic consumer: the shallowest child inside the window.
		childDepth := depth
		for _, child := range sc.Children() {
			cd := st.di.NodeDepth(child)
			if cd >= j && cd <= depth && cd < childDepth {
				childDepth = cd
			}
		}
		infos = append(infos, shortcutInfo{
			node:   sc,
			top:    st.L - levels[idx],
			bottom: childDepth - j,
		})
	}
	return infos
}

// shortcutPain scores a tie-broken candidate: the levels its shortcut set
// would force earlier bootstraps to give up.
func (st *dpState) shortcutPain(prev, curr int, levels []int) int {
	low := curr - st.L
	if low < 0 {
		low = 0
	}
	chain := st.chainFrom(prev)
	pain := 0
	for _, sc := range st.di.shortcuts(curr, low) {
		closest := st.previousBootDepth(sc, chain)
		idx := clampIndex(st.L-1-(st.di.NodeDepth(sc)-closest), st.L-1)
		if closest == prev {
			pain += st.L - levels[idx]
		} else {
			next, ok := st.nextBootDepth(sc, chain)
			pain += st.L - st.levelsAtDepth(next, ok)[idx]
		}
	}
	return pain
}

// dpLevelingPass places bootstraps by dynamic programming over the DAG
// depth, minimising the total ciphertext volume bootstrapped.
type dpLevelingPass struct {
	ctx fhe.Context
}

func (dpLevelingPass) Name() string { return "dp_bootstrapping_pass" }

func (p dpLevelingPass) Do(in *dag.Dag[top.Scaled]) (*dag.Dag[top.Leveled], error) {
	removeScaledBootstraps(in)
	di := newDepthInfo(in)
	L := p.ctx.UsableLevels().Value()

	st := &dpState{
		di:          di,
		L:           L,
		dp:          []dpEntry{{prev: 0, cost: 0}},
		levelsAt:    map[int][]int{},
		shortcutsAt: map[int][]*scaledNode{},
	}
	st.levelsAt[0] = st.identityLevels()

	for d := 1; d <= di.DagDepth(); d++ {
		if d < L {
			st.dp = append(st.dp, dpEntry{prev: 0, cost: 0})
			st.levelsAt[d] = st.identityLevels()
			continue
		}
		type candidate struct {
			entry     dpEntry
			shortcuts []*scaledNode
			levels    []int
		}
		var candidates []candidate
		for j := d - L + 1; j < d; j++ {
			if j < 0 {
				continue
			}
			infos := st.shortcutInfos(di.shortcuts(j, d), j, d)
			survivors, levels := st.pickLargestAcceptableSubset(infos, d-j)
			var must []*scaledNode
			for _, info := range infos {
				if _, ok := survivors[info.node]; !ok {
					must = append(must, info.node)
				}
			}
			cost := st.dp[j].cost + ciphertextCount(di.Frontier(j)) + ciphertextCount(must)
			candidates = append(candidates, candidate{
				entry:     dpEntry{prev: j, cost: cost},
				shortcuts: must,
				levels:    levels,
			})
		}
		if len(candidates) == 0 {
			return nil, passErr(p.Name(), KindLevelUnderflow, nil,
				"no feasible bootstrap frontier for depth %d with %d usable levels", d, L)
		}
		best := 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i].entry.cost < candidates[best].entry.cost {
				best = i
			} else if candidates[i].entry.cost == candidates[best].entry.cost {
				if st.shortcutPain(candidates[i].entry.prev, d, candidates[i].levels) <
					st.shortcutPain(candidates[best].entry.prev, d, candidates[best].levels) {
					best = i
				}
			}
		}
		st.dp = append(st.dp, candidates[best].entry)
		st.levelsAt[d] = candidates[best].levels
		st.shortcutsAt[d] = candidates[best].shortcuts
	}

	// Backtrack the selected bootstrap frontiers.
	var frontiers []int
	for j := st.dp[di.DagDepth()].prev; j != 0; j = st.dp[j].prev {
		frontiers = append(frontiers, j)
	}

	shortcutSet := map[*scaledNode]struct{}{}
	for _, sc := range st.shortcutsAt[di.DagDepth()] {
		shortcutSet[sc] = struct{}{}
	}
	for _, f := range frontiers {
		for _, sc := range st.shortcutsAt[f] {
			shortcutSet[sc] = struct{}{}
		}
	}

	// Lower to the leveled DAG, bootstrapping frontier nodes and shortcut
	// roots as they are placed.
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
			return nil, passErr(p.Name(), KindLevelUnderflow, []int{old.ID()},
				"level underflows despite bootstrap placement")
		}
		node := out.AddNode(top.Leveled{
			Op:       old.Value().Op.CopyNew(),
			Info:     info,
			Depth:    di.NodeDepth(old),
			HasDepth: true,
		}, parents, old.ID())

		_, isShortcut := shortcutSet[old]
		onFrontier := false
		for _, f := range frontiers {
			if di.onFrontier(f, old) {
				onFrontier = true
				break
			}
		}
		if isShortcut || onFrontier {
			mark := top.ShortcutNo
			if isShortcut {
				mark = top.ShortcutYes
			}
			oldToNew[old] = appendBootstrap(out, node, usable, mark)
		} else {
			oldToNew[old] = node
		}
	}
	return out, nil
}
