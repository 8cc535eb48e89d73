package dag

import (
	"container/heap"
	"fmt"

	"github.com/tuneinsight/tensorc/utils"
)

// Dag is a handle to a shared-node graph. The zero value is not usable; call
// New.
type Dag[T Value[T]] struct {
	sentinel *Node[T]
	nextID   int
	byID     map[int]*Node[T]
}

// New returns an empty Dag.
func New[T Value[T]]() *Dag[T] {
	return &Dag[T]{
		sentinel: &Node[T]{id: 0, sentinel: true},
		nextID:   1,
		byID:     map[int]*Node[T]{},
	}
}

// Sentinel returns the graph sentinel.
func (d *Dag[T]) Sentinel() *Node[T] {
	return d.sentinel
}

// Inputs returns the graph's source nodes (children of the sentinel) sorted
// by id.
func (d *Dag[T]) Inputs() []*Node[T] {
	return d.sentinel.Children()
}

// AddInput attaches a new source node holding v, with the given ancestors.
func (d *Dag[T]) AddInput(v T, ancestors ...int) *Node[T] {
	return d.AddInputWithID(d.allocID(), v, ancestors...)
}

// AddInputWithID attaches a new source node with an explicit id, used when
// reading a serialised graph.
func (d *Dag[T]) AddInputWithID(id int, v T, ancestors ...int) *Node[T] {
	n := d.newNode(id, v, ancestors)
	AddParentChildEdge(d.sentinel, n)
	return n
}

// AddNode creates a node holding v whose parent list is exactly parents
// (order is operand order; duplicates are preserved). Empty parents is
// equivalent to AddInput.
func (d *Dag[T]) AddNode(v T, parents []*Node[T], ancestors ...int) *Node[T] {
	return d.AddNodeWithID(d.allocID(), v, parents, ancestors...)
}

// AddNodeWithID is AddNode with an explicit id, used when reading a
// serialised graph.
func (d *Dag[T]) AddNodeWithID(id int, v T, parents []*Node[T], ancestors ...int) *Node[T] {
	if len(parents) == 0 {
		return d.AddInputWithID(id, v, ancestors...)
	}
	n := d.newNode(id, v, ancestors)
	for _, p := range parents {
		AddParentChildEdge(p, n)
	}
	return n
}

func (d *Dag[T]) newNode(id int, v T, ancestors []int) *Node[T] {
	if id <= 0 {
		panic(fmt.Sprintf("dag: invalid node id %d", id))
	}
	if _, ok := d.byID[id]; ok {
		panic(fmt.Sprintf("dag: node id %d already in use", id))
	}
	if id >= d.nextID {
		d.nextID = id + 1
	}
	n := &Node[T]{id: id, value: v, ancestors: append([]int{}, ancestors...)}
	d.byID[id] = n
	return n
}

func (d *Dag[T]) allocID() int {
	id := d.nextID
	d.nextID++
	return id
}

// NodeByID returns the live node with the given id.
func (d *Dag[T]) NodeByID(id int) (*Node[T], bool) {
	n, ok := d.byID[id]
	if !ok {
		return nil, false
	}
	// The id map is not pruned on removal; confirm liveness.
	for _, live := range d.TopologicalOrder() {
		if live == n {
			return n, true
		}
	}
	return nil, false
}

type idHeap[T Value[T]] []*Node[T]

func (h idHeap[T]) Len() int            { return len(h) }
func (h idHeap[T]) Less(i, j int) bool  { return h[i].id < h[j].id }
func (h idHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap[T]) Push(x interface{}) { *h = append(*h, x.(*Node[T])) }
func (h *idHeap[T]) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// TopologicalOrder returns the live nodes such that every node appears
// strictly after all of its parents. Ties are broken by smallest id first,
// making the order deterministic.
func (d *Dag[T]) TopologicalOrder() []*Node[T] {
	visited := map[*Node[T]]struct{}{d.sentinel: {}}
	emitted := map[*Node[T]]struct{}{d.sentinel: {}}
	frontier := &idHeap[T]{}
	heap.Init(frontier)
	var nodes []*Node[T]

	push := func(n *Node[T]) {
		visited[n] = struct{}{}
		heap.Push(frontier, n)
	}
	allParentsEmitted := func(n *Node[T]) bool {
		for _, p := range n.parents {
			if _, ok := emitted[p]; !ok {
				return false
			}
		}
		return true
	}

	for _, in := range d.sentinel.Children() {
		if allParentsEmitted(in) {
			push(in)
		}
	}
	for frontier.Len() > 0 {
		n := heap.Pop(frontier).(*Node[T])
		emitted[n] = struct{}{}
		nodes = append(nodes, n)
		for _, c := range n.Children() {
			if _, ok := visited[c]; !ok && allParentsEmitted(c) {
				push(c)
			}
		}
	}
	return nodes
}

// ReverseTopologicalOrder returns TopologicalOrder reversed.
func (d *Dag[T]) ReverseTopologicalOrder() []*Node[T] {
	return utils.Reverse(d.TopologicalOrder())
}

// AncestorIDOrder returns the live nodes sorted by their first ancestor id.
// Nodes without ancestors come first; nodes with equal keys keep their
// topological order.
func (d *Dag[T]) AncestorIDOrder() []*Node[T] {
	nodes := d.TopologicalOrder()
	key := func(n *Node[T]) int {
		if len(n.ancestors) == 0 {
			return 0
		}
		return n.ancestors[0]
	}
	// Stable insertion sort keeps topological order among equal keys.
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && key(nodes[j-1]) > key(nodes[j]); j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
	return nodes
}

// Validate checks the structural invariants: edge symmetry and acyclicity
// over the live nodes. It returns an error naming the offending nodes.
func (d *Dag[T]) Validate() error {
	nodes := d.TopologicalOrder()
	live := map[*Node[T]]struct{}{d.sentinel: {}}
	for _, n := range nodes {
		live[n] = struct{}{}
	}
	for _, n := range nodes {
		for _, c := range n.children {
			if !c.IsParent(n) {
				return fmt.Errorf("dag: edge %d->%d missing on child", n.id, c.id)
			}
		}
		for _, p := range n.parents {
			if !p.ContainsChild(n) {
				return fmt.Errorf("dag: edge %d->%d missing on parent", p.id, n.id)
			}
			if _, ok := live[p]; !ok {
				return fmt.Errorf("dag: node %d has unreachable parent %d", n.id, p.id)
			}
		}
	}
	seen := map[*Node[T]]struct{}{}
	for _, n := range nodes {
		for _, p := range n.Parents() {
			if _, ok := seen[p]; !ok {
				return fmt.Errorf("dag: node %d precedes its parent %d in topological order", n.id, p.id)
			}
		}
		seen[n] = struct{}{}
	}
	return nil
}

// CloneFromAncestor produces an isomorphic Dag with fresh ids; each new node
// carries a single ancestor id equal to the original node's id. This is the
// canonical entry point for any pass that mutates its input.
func CloneFromAncestor[T Value[T]](in *Dag[T]) *Dag[T] {
	out := New[T]()
	oldToNew := map[*Node[T]]*Node[T]{}
	for _, oldNode := range in.TopologicalOrder() {
		parents := make([]*Node[T], 0, len(oldNode.Parents()))
		for _, p := range oldNode.Parents() {
			parents = append(parents, oldToNew[p])
		}
		newNode := out.AddNode(oldNode.Value().CopyNew(), parents, oldNode.ID())
		oldToNew[oldNode] = newNode
	}
	return out
}
