package tensor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/utils"
)

func TestShapeAndIndex(t *testing.T) {
	sh := NewShape(2, 3, 4)
	require.Equal(t, 24, sh.ValueCount())
	require.Equal(t, 3, sh.DimensionCount())

	for flat := 0; flat < sh.ValueCount(); flat++ {
		idx := IndexFromFlat(sh, flat)
		require.Equal(t, flat, idx.Flat())
	}

	idx := NewIndex(sh, 1, 2, 3)
	require.Equal(t, 1*12+2*4+3, idx.Flat())
}

func TestDiffIndex(t *testing.T) {
	sh := NewShape(4, 4)
	diff := NewDiffIndex(sh, 0, 1)
	idx := NewIndex(sh, 0, 3)
	require.Equal(t, NewIndex(sh, 0, 0), diff.CyclicAdd(idx))
	_, ok := diff.Add(idx)
	require.False(t, ok)
	shifted, ok := diff.Add(NewIndex(sh, 2, 2))
	require.True(t, ok)
	require.Equal(t, NewIndex(sh, 2, 3), shifted)
}

// checkLayoutInvariants verifies the layout properties: the chunk
// enumeration covers the slot capacity, every valid tensor index appears in
// exactly one slot, and the remaining slots are gaps.
func checkLayoutInvariants(t *testing.T, layout Layout) {
	t.Helper()
	offsets := layout.ChunkOffsets()
	require.Equal(t, layout.TotalSlots(), len(offsets)*layout.ChunkSize().Value())

	seen := map[int]int{}
	gaps := 0
	for _, offset := range offsets {
		indices := layout.TensorIndices(offset)
		require.Len(t, indices, layout.ChunkSize().Value())
		for slot, idx := range indices {
			if idx == nil {
				gaps++
				continue
			}
			seen[idx.Flat()]++
			gotOffset, gotSlot := layout.ChunkAndSlot(*idx)
			require.Equal(t, offset, gotOffset)
			require.Equal(t, slot, gotSlot)
		}
	}
	require.Len(t, seen, layout.GetShape().ValueCount())
	for flat, count := range seen {
		require.Equal(t, 1, count, "index %d appears %d times", flat, count)
	}
	require.Equal(t, layout.TotalSlots()-layout.GetShape().ValueCount(), gaps)
}

func TestRowMajorLayoutInvariants(t *testing.T) {
	for _, tc := range []struct {
		dims     []int
		logChunk int
	}{
		{[]int{8}, 3},
		{[]int{8}, 2},
		{[]int{4, 4}, 2},
		{[]int{2, 3}, 3},
		{[]int{5}, 3},
		{[]int{8, 8}, 4},
	} {
		layout := RowMajorLayout(NewShape(tc.dims...), NewLogChunkSize(tc.logChunk))
		checkLayoutInvariants(t, layout)
	}
}

func TestLayoutWithGapsAndDuplicates(t *testing.T) {
	sh := NewShape(4)
	// Gap in the chunk bits; the index bits move to the offset region.
	layout := NewLayout(sh, NewLogChunkSize(2), []LayoutBit{Bit(0, 0), Gap()})
	checkLayoutInvariants(t, layout)
	require.Equal(t, 2, layout.TotalChunks())
}

func TestLayoutEquality(t *testing.T) {
	sh := NewShape(4, 4)
	cs := NewLogChunkSize(2)
	a := RowMajorLayout(sh, cs)
	b := RowMajorLayout(sh, cs)
	require.True(t, a.Equal(b))
	c := NewLayout(sh, cs, []LayoutBit{Bit(0, 0), Bit(0, 1)})
	require.False(t, a.Equal(c))
	checkLayoutInvariants(t, c)
}

// Random bit orders keep the invariants; the PRNG makes the shuffle
// reproducible.
func TestShuffledLayoutInvariants(t *testing.T) {
	prng, err := utils.NewKeyedPRNG([]byte("layout-shuffle-test-key-0000000"))
	require.NoError(t, err)
	sh := NewShape(4, 8)
	cs := NewLogChunkSize(3)
	pool := RowMajorLayout(sh, cs).Bits()
	buf := make([]byte, 1)
	for trial := 0; trial < 16; trial++ {
		bits := append([]LayoutBit{}, pool...)
		for i := len(bits) - 1; i > 0; i-- {
			require.NoError(t, prng.Clock(buf))
			j := int(buf[0]) % (i + 1)
			bits[i], bits[j] = bits[j], bits[i]
		}
		checkLayoutInvariants(t, NewLayout(sh, cs, bits))
	}
}

func TestConversionTentacles(t *testing.T) {
	sh := NewShape(4, 4)
	cs := NewLogChunkSize(2)
	rowMajor := RowMajorLayout(sh, cs)
	require.Equal(t, rowMajor.TotalChunks(), ConversionTentacles(rowMajor, rowMajor))

	swapped := NewLayout(sh, cs, []LayoutBit{Bit(0, 0), Bit(0, 1)})
	require.Equal(t, rowMajor.TotalChunks()*4, ConversionTentacles(rowMajor, swapped))
}

func TestLayoutSerialisationRoundTrip(t *testing.T) {
	layouts := []Layout{
		RowMajorLayout(NewShape(8), NewLogChunkSize(3)),
		NewLayout(NewShape(4), NewLogChunkSize(2), []LayoutBit{Bit(0, 0), Gap()}),
		RowMajorLayout(NewShape(4, 4), NewLogChunkSize(2)),
	}
	for _, layout := range layouts {
		var sb strings.Builder
		w := serial.NewWriter(&sb)
		layout.Write(w)
		require.NoError(t, w.Err())

		back, err := ReadLayout(serial.NewScanner(strings.NewReader(sb.String())))
		require.NoError(t, err)
		require.True(t, layout.Equal(back), "round trip of %v gave %v", layout, back)
	}
}

func TestLaidOutTensor(t *testing.T) {
	layout := RowMajorLayout(NewShape(8, 8), NewLogChunkSize(4))
	offsets := layout.ChunkOffsets()
	chunks := make([]LaidOutChunk[int], len(offsets))
	for i, offset := range offsets {
		chunks[i] = LaidOutChunk[int]{Offset: offset, Chunk: i * 10}
	}
	lot := NewLaidOutTensor(layout, chunks)
	require.Equal(t, 10, lot.ChunkAt(offsets[1]))

	doubled := MapChunks(lot, func(offset, c int) int { return c * 2 })
	require.Equal(t, 20, doubled.ChunkAt(offsets[1]))

	require.Panics(t, func() {
		NewLaidOutTensor(layout, chunks[:1])
	})
}
