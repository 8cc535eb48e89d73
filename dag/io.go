package dag

import (
	"fmt"

	"github.com/tuneinsight/tensorc/serial"
)

// Write serialises the graph. Each node becomes one line:
//
//	<id> <ancestor_list> <payload> <parent_id_list>
//
// Nodes are written in topological order, so parents always precede their
// children in the stream.
func Write[T Value[T]](w *serial.Writer, d *Dag[T], writeValue func(*serial.Writer, T)) {
	for _, n := range d.TopologicalOrder() {
		w.WriteInt(n.ID())
		w.WriteInts(n.Ancestors())
		writeValue(w, n.Value())
		parents := n.Parents()
		ids := make([]int, len(parents))
		for i, p := range parents {
			ids[i] = p.ID()
		}
		w.WriteInts(ids)
		w.EndLine()
	}
}

// Read parses a graph written by Write.
func Read[T Value[T]](s *serial.Scanner, readValue func(*serial.Scanner) (T, error)) (*Dag[T], error) {
	d := New[T]()
	idToNode := map[int]*Node[T]{}
	for s.More() {
		id := s.Int()
		ancestors := s.Ints()
		v, err := readValue(s)
		if err != nil {
			return nil, err
		}
		parentIDs := s.Ints()
		if s.Err() != nil {
			return nil, s.Err()
		}
		parents := make([]*Node[T], 0, len(parentIDs))
		for _, pid := range parentIDs {
			p, ok := idToNode[pid]
			if !ok {
				return nil, fmt.Errorf("dag: node %d references unknown parent %d", id, pid)
			}
			parents = append(parents, p)
		}
		idToNode[id] = d.AddNodeWithID(id, v, parents, ancestors...)
	}
	return d, s.Err()
}
