package dag

import (
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/utils"
)

// Archive is the provenance record of one pass: a mapping from each node id
// produced by the pass to the ids of the nodes it was produced from.
type Archive map[int][]int

// NewArchive records the provenance of every live node of d.
func NewArchive[T Value[T]](d *Dag[T]) Archive {
	a := Archive{}
	for _, n := range d.TopologicalOrder() {
		a[n.ID()] = append([]int{}, n.Ancestors()...)
	}
	return a
}

// Compose joins two adjacent archives relationally: the receiver maps the
// later pass's ids to the intermediate ids, next maps intermediate ids to
// earlier ids. The result maps the later ids directly to the earlier ids.
func (a Archive) Compose(next Archive) Archive {
	out := Archive{}
	for dest, mids := range a {
		var srcs []int
		for _, mid := range mids {
			srcs = append(srcs, next[mid]...)
		}
		out[dest] = utils.GetDistincts(srcs)
	}
	return out
}

// Write serialises the archive, one destination per line, in ascending
// destination order.
func (a Archive) Write(w *serial.Writer) {
	for _, dest := range utils.GetSortedKeys(a) {
		w.WriteInt(dest)
		w.WriteInts(a[dest])
		w.EndLine()
	}
}

// ReadArchive parses an archive written by Write.
func ReadArchive(s *serial.Scanner) (Archive, error) {
	a := Archive{}
	for s.More() {
		dest := s.Int()
		a[dest] = s.Ints()
	}
	return a, s.Err()
}
