package compiler

import (
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/top"
	"github.com/tuneinsight/tensorc/utils"
	"golang.org/x/exp/slices"
)

type scaledNode = dag.Node[top.Scaled]

func isRescale(n *scaledNode) bool {
	_, ok := n.Value().Op.(*top.TRescaleC)
	return ok
}

func isOutput(n *scaledNode) bool {
	_, ok := n.Value().Op.(*top.TOutputC)
	return ok
}

// edge is a parent→child edge of the scaled DAG.
type edge struct {
	parent *scaledNode
	child  *scaledNode
}

// depthInfo is the depth model of a scaled DAG: node depths (incremented
// strictly across rescales), per-depth frontiers (chokepoints) and the
// edges shortcutting past each frontier.
type depthInfo struct {
	order     []*scaledNode
	depth     map[*scaledNode]int
	dagDepth  int
	frontiers [][]*scaledNode
	crossing  []map[edge]struct{}
}

func newDepthInfo(d *dag.Dag[top.Scaled]) *depthInfo {
	di := &depthInfo{depth: map[*scaledNode]int{}}
	di.order = d.TopologicalOrder()
	for _, n := range di.order {
		depth := 0
		for _, p := range n.Parents() {
			if di.depth[p] > depth {
				depth = di.depth[p]
			}
		}
		if len(n.Parents()) > 0 && isRescale(n) {
			depth++
		}
		di.depth[n] = depth
		if depth > di.dagDepth {
			di.dagDepth = depth
		}
	}
	di.buildFrontiers()
	di.buildCrossingEdges()
	return di
}

// NodeDepth returns the depth of a node.
func (di *depthInfo) NodeDepth(n *scaledNode) int { return di.depth[n] }

// DagDepth returns the maximum depth.
func (di *depthInfo) DagDepth() int { return di.dagDepth }

// Frontier returns the chokepoint set at a depth, sorted by node id.
func (di *depthInfo) Frontier(depth int) []*scaledNode { return di.frontiers[depth] }

func (di *depthInfo) onFrontier(depth int, n *scaledNode) bool {
	return slices.Contains(di.frontiers[depth], n)
}

// nodesAtDepth returns the nodes at one depth in topological order.
func (di *depthInfo) nodesAtDepth(depth int) []*scaledNode {
	var nodes []*scaledNode
	for _, n := range di.order {
		if di.depth[n] == depth {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// connectedComponents partitions nodes into weakly connected components of
// the sub-DAG they induce.
func connectedComponents(nodes []*scaledNode) [][]*scaledNode {
	inSet := map[*scaledNode]struct{}{}
	for _, n := range nodes {
		inSet[n] = struct{}{}
	}
	label := map[*scaledNode]*scaledNode{}
	var find func(n *scaledNode) *scaledNode
	find = func(n *scaledNode) *scaledNode {
		if label[n] == n {
			return n
		}
		root := find(label[n])
		label[n] = root
		return root
	}
	union := func(a, b *scaledNode) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra.ID() < rb.ID() {
				label[rb] = ra
			} else {
				label[ra] = rb
			}
		}
	}
	for _, n := range nodes {
		label[n] = n
	}
	for _, n := range nodes {
		for _, p := range n.Parents() {
			if _, ok := inSet[p]; ok {
				union(n, p)
			}
		}
	}
	byRoot := map[*scaledNode][]*scaledNode{}
	var roots []*scaledNode
	for _, n := range nodes {
		root := find(n)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], n)
	}
	slices.SortFunc(roots, func(a, b *scaledNode) bool { return a.ID() < b.ID() })
	out := make([][]*scaledNode, 0, len(roots))
	for _, root := range roots {
		out = append(out, byRoot[root])
	}
	return out
}

// findChokepoint returns the single node through which every descendance
// path of the component passes, if one exists. Nodes feeding a rescale
// directly do not qualify (they sit past the frontier).
func findChokepoint(component []*scaledNode) (*scaledNode, bool) {
	inSet := map[*scaledNode]struct{}{}
	for _, n := range component {
		inSet[n] = struct{}{}
	}
	// component is in topological order; scan from the sinks backward.
	rev := utils.Reverse(component)

	position := map[*scaledNode]int{}
	for i, n := range rev {
		position[n] = i
	}
	noRescaleChild := func(n *scaledNode) bool {
		for _, c := range n.Children() {
			if isRescale(c) {
				return false
			}
		}
		return true
	}
	isSink := func(n *scaledNode) bool {
		for _, c := range n.Children() {
			if _, ok := inSet[c]; ok && !isOutput(c) {
				return false
			}
		}
		return true
	}

	maxDependency := -1
	for _, n := range rev {
		if isSink(n) && position[n] > maxDependency {
			maxDependency = position[n]
		}
	}
	for idx, n := range rev {
		if idx == len(rev)-1 {
			break
		}
		if maxDependency <= idx && noRescaleChild(n) {
			return n, true
		}
		for _, p := range n.Parents() {
			if _, ok := inSet[p]; ok && position[p] > maxDependency {
				maxDependency = position[p]
			}
		}
	}
	// A lone source is trivially a chokepoint.
	var sources []*scaledNode
	for _, n := range component {
		src := true
		for _, p := range n.Parents() {
			if _, ok := inSet[p]; ok {
				src = false
				break
			}
		}
		if src {
			sources = append(sources, n)
		}
	}
	if len(sources) == 1 {
		return sources[0], true
	}
	return nil, false
}

func (di *depthInfo) buildFrontiers() {
	di.frontiers = make([][]*scaledNode, di.dagDepth+1)
	for depth := 0; depth <= di.dagDepth; depth++ {
		var frontier []*scaledNode
		for _, component := range connectedComponents(di.nodesAtDepth(depth)) {
			if chokepoint, ok := findChokepoint(component); ok {
				frontier = append(frontier, chokepoint)
				continue
			}
			// No unique chokepoint: fall back to the rescale nodes of the
			// component.
			for _, n := range component {
				if isRescale(n) {
					frontier = append(frontier, n)
				}
			}
		}
		slices.SortFunc(frontier, func(a, b *scaledNode) bool { return a.ID() < b.ID() })
		di.frontiers[depth] = frontier
	}
}

// isAfterFrontier reports whether the node sits past its depth's frontier:
// walking up through same-depth ancestors reaches a frontier node.
func (di *depthInfo) isAfterFrontier(n *scaledNode) bool {
	depth := di.depth[n]
	if di.onFrontier(depth, n) {
		return false
	}
	for cur := n; di.depth[cur] == depth; {
		if di.onFrontier(depth, cur) {
			return true
		}
		parents := cur.Parents()
		if len(parents) == 0 {
			break
		}
		best := parents[0]
		for _, p := range parents {
			if di.depth[p] > di.depth[best] {
				best = p
			}
		}
		if best == cur {
			break
		}
		cur = best
	}
	return false
}

func (di *depthInfo) buildCrossingEdges() {
	di.crossing = make([]map[edge]struct{}, di.dagDepth+1)
	for i := range di.crossing {
		di.crossing[i] = map[edge]struct{}{}
	}
	for _, parent := range di.order {
		pd := di.depth[parent]
		for _, child := range parent.Children() {
			cd := di.depth[child]
			if cd-pd > 1 || (cd-pd == 1 && !isRescale(child)) {
				for depth := pd; depth < cd-1; depth++ {
					di.crossing[depth+1][edge{parent: parent, child: child}] = struct{}{}
				}
				if di.isAfterFrontier(child) {
					di.crossing[cd][edge{parent: parent, child: child}] = struct{}{}
				}
			}
		}
	}
}

// shortcuts returns the parents of edges crossing frontier i but not
// frontier j, sorted by id.
func (di *depthInfo) shortcuts(i, j int) []*scaledNode {
	seen := map[*scaledNode]struct{}{}
	var out []*scaledNode
	for e := range di.crossing[i] {
		if _, also := di.crossing[j][e]; also {
			continue
		}
		if _, dup := seen[e.parent]; !dup {
			seen[e.parent] = struct{}{}
			out = append(out, e.parent)
		}
	}
	slices.SortFunc(out, func(a, b *scaledNode) bool { return a.ID() < b.ID() })
	return out
}

// ciphertextCount sums the chunk counts of the nodes' output layouts.
func ciphertextCount(nodes []*scaledNode) int {
	count := 0
	for _, n := range nodes {
		count += n.Value().Op.OutputLayout().TotalChunks()
	}
	return count
}
