package dag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/tensorc/serial"
)

type payload struct {
	Tag int
}

func (p payload) CopyNew() payload { return p }

func writePayload(w *serial.Writer, p payload) { w.WriteInt(p.Tag) }

func readPayload(s *serial.Scanner) (payload, error) {
	return payload{Tag: s.Int()}, s.Err()
}

// diamond builds a -> (b, c) -> d.
func diamond(t *testing.T) (*Dag[payload], []*Node[payload]) {
	t.Helper()
	d := New[payload]()
	a := d.AddInput(payload{Tag: 1})
	b := d.AddNode(payload{Tag: 2}, []*Node[payload]{a})
	c := d.AddNode(payload{Tag: 3}, []*Node[payload]{a})
	e := d.AddNode(payload{Tag: 4}, []*Node[payload]{b, c})
	return d, []*Node[payload]{a, b, c, e}
}

func TestTopologicalOrder(t *testing.T) {
	d, nodes := diamond(t)
	order := d.TopologicalOrder()
	require.Len(t, order, 4)
	position := map[*Node[payload]]int{}
	for i, n := range order {
		position[n] = i
	}
	for _, n := range nodes {
		for _, p := range n.Parents() {
			require.Less(t, position[p], position[n])
		}
	}
	// Ties break by id: b before c.
	require.Equal(t, nodes[1], order[1])
	require.Equal(t, nodes[2], order[2])
	require.NoError(t, d.Validate())
}

func TestDuplicateParents(t *testing.T) {
	d := New[payload]()
	a := d.AddInput(payload{Tag: 1})
	sq := d.AddNode(payload{Tag: 2}, []*Node[payload]{a, a})
	require.Len(t, sq.Parents(), 2)
	require.Equal(t, 2, sq.ParentMultiplicity(a))
	require.NoError(t, d.Validate())
}

func TestRemoveNode(t *testing.T) {
	d := New[payload]()
	a := d.AddInput(payload{Tag: 1})
	b := d.AddNode(payload{Tag: 2}, []*Node[payload]{a})
	c := d.AddNode(payload{Tag: 3}, []*Node[payload]{b, b})
	RemoveNode(b)
	require.Equal(t, []*Node[payload]{a, a}, c.Parents())
	require.NoError(t, d.Validate())
	require.Len(t, d.TopologicalOrder(), 2)
}

func TestAddNodeOnEdgeAndSwap(t *testing.T) {
	d := New[payload]()
	a := d.AddInput(payload{Tag: 1})
	b := d.AddNode(payload{Tag: 2}, []*Node[payload]{a})
	c := d.AddNode(payload{Tag: 3}, []*Node[payload]{b})
	mid := &Node[payload]{id: d.allocID(), value: payload{Tag: 9}}
	d.byID[mid.id] = mid
	AddNodeOnEdge(b, c, mid)
	require.Equal(t, []*Node[payload]{mid}, c.Parents())
	require.NoError(t, d.Validate())

	// Swap b and mid: a -> mid -> b -> c.
	SwapParentAndChild(b, mid)
	require.Equal(t, []*Node[payload]{a}, mid.Parents())
	require.Equal(t, []*Node[payload]{mid}, b.Parents())
	require.Equal(t, []*Node[payload]{b}, c.Parents())
	require.NoError(t, d.Validate())
}

func TestCloneFromAncestor(t *testing.T) {
	d, _ := diamond(t)
	clone := CloneFromAncestor(d)
	origOrder := d.TopologicalOrder()
	cloneOrder := clone.TopologicalOrder()
	require.Len(t, cloneOrder, len(origOrder))
	for i, n := range cloneOrder {
		require.Equal(t, []int{origOrder[i].ID()}, n.Ancestors())
		require.Equal(t, origOrder[i].Value(), n.Value())
	}
	require.NoError(t, clone.Validate())
}

func TestArchiveCompose(t *testing.T) {
	later := Archive{10: {5, 6}}
	earlier := Archive{5: {1}, 6: {1, 2}}
	composed := later.Compose(earlier)
	require.Equal(t, Archive{10: {1, 2}}, composed)
}

func TestDagIORoundTrip(t *testing.T) {
	d, _ := diamond(t)
	var sb strings.Builder
	w := serial.NewWriter(&sb)
	Write(w, d, writePayload)
	require.NoError(t, w.Err())

	back, err := Read(NewScannerFor(sb.String()), readPayload)
	require.NoError(t, err)

	var sb2 strings.Builder
	w2 := serial.NewWriter(&sb2)
	Write(w2, back, writePayload)
	require.Equal(t, sb.String(), sb2.String())
}

// NewScannerFor is a test convenience.
func NewScannerFor(s string) *serial.Scanner {
	return serial.NewScanner(strings.NewReader(s))
}
