package top

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/tensor"
)

func testContext(t *testing.T, logChunk int) fhe.Context {
	t.Helper()
	ctx, err := fhe.NewContext(logChunk, 30, 8, 32)
	require.NoError(t, err)
	return ctx
}

// evaluator interprets a ct-op graph on plaintext values; the backend the
// emitted program targets would do the same homomorphically.
type evaluator struct {
	program *ctop.Program
	tensors map[string][]float64
	inputs  map[Chunk][]float64
	memo    map[Chunk][]float64
}

func newEvaluator(p *ctop.Program, tensors map[string][]float64) *evaluator {
	return &evaluator{
		program: p,
		tensors: tensors,
		inputs:  map[Chunk][]float64{},
		memo:    map[Chunk][]float64{},
	}
}

// bind assigns the plaintext values of an input tensor to its chunks.
func (e *evaluator) bind(lot LaidOutCt, values []float64) {
	layout := lot.Layout()
	for _, chunk := range lot.Chunks() {
		slots := make([]float64, layout.ChunkSize().Value())
		for slot, idx := range layout.TensorIndices(chunk.Offset) {
			if idx != nil {
				slots[slot] = values[idx.Flat()]
			}
		}
		e.inputs[chunk.Chunk] = slots
	}
}

func (e *evaluator) eval(t *testing.T, n Chunk) []float64 {
	t.Helper()
	if vals, ok := e.memo[n]; ok {
		return vals
	}
	var out []float64
	size := e.program.Context().ChunkSize().Value()
	switch op := n.Value().(type) {
	case ctop.InputC:
		vals, ok := e.inputs[n]
		require.True(t, ok, "unbound input chunk %v", op.Spec)
		out = vals
	case ctop.ZeroC:
		out = make([]float64, size)
	case ctop.OutputC, ctop.RescaleC, ctop.BootstrapC:
		out = e.eval(t, n.Parents()[0])
	case ctop.AddCC:
		a, b := e.eval(t, n.Parents()[0]), e.eval(t, n.Parents()[1])
		out = make([]float64, size)
		for i := range out {
			out[i] = a[i] + b[i]
		}
	case ctop.MulCC:
		a, b := e.eval(t, n.Parents()[0]), e.eval(t, n.Parents()[1])
		out = make([]float64, size)
		for i := range out {
			out[i] = a[i] * b[i]
		}
	case ctop.AddCP, ctop.MulCP:
		var handle string
		add := false
		if cp, ok := op.(ctop.AddCP); ok {
			handle, add = cp.Handle, true
		} else {
			handle = op.(ctop.MulCP).Handle
		}
		chunk, ok := e.program.Chunk(handle)
		require.True(t, ok, "unknown chunk handle %s", handle)
		pt, err := chunk.Resolve(e.tensors)
		require.NoError(t, err)
		a := e.eval(t, n.Parents()[0])
		out = make([]float64, size)
		for i := range out {
			if add {
				out[i] = a[i] + pt[i]
			} else {
				out[i] = a[i] * pt[i]
			}
		}
	case ctop.AddCS:
		a := e.eval(t, n.Parents()[0])
		out = make([]float64, size)
		for i := range out {
			out[i] = a[i] + op.Scalar.Value
		}
	case ctop.MulCS:
		a := e.eval(t, n.Parents()[0])
		out = make([]float64, size)
		for i := range out {
			out[i] = a[i] * op.Scalar.Value
		}
	case ctop.RotateC:
		a := e.eval(t, n.Parents()[0])
		out = make([]float64, size)
		for i := range out {
			out[i] = a[(i+op.Shift)%size]
		}
	default:
		t.Fatalf("unexpected ct op %T", op)
	}
	e.memo[n] = out
	return out
}

// read flattens a laid-out result back into tensor order, requiring gaps to
// be zero.
func (e *evaluator) read(t *testing.T, lot LaidOutCt) []float64 {
	t.Helper()
	layout := lot.Layout()
	out := make([]float64, layout.GetShape().ValueCount())
	for _, chunk := range lot.Chunks() {
		vals := e.eval(t, chunk.Chunk)
		for slot, idx := range layout.TensorIndices(chunk.Offset) {
			if idx == nil {
				require.Zero(t, vals[slot], "gap slot %d of chunk %d is non-zero", slot, chunk.Offset)
				continue
			}
			out[idx.Flat()] = vals[slot]
		}
	}
	return out
}

func inputTensor(p *ctop.Program, layout tensor.Layout, name string) LaidOutCt {
	op := &TInputC{Layout: layout, Name: name, LogScale: 30}
	return op.CreateInputTensor(p, fhe.LevelInfo{Level: 8, LogScale: 30})
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestLayoutConversionRoundTrip(t *testing.T) {
	ctx := testContext(t, 2)
	sh := tensor.NewShape(4, 4)
	rowMajor := tensor.RowMajorLayout(sh, ctx.ChunkSize())
	swapped := tensor.NewLayout(sh, ctx.ChunkSize(),
		[]tensor.LayoutBit{tensor.Bit(0, 0), tensor.Bit(0, 1)})

	p := ctop.NewProgram(ctx)
	in := inputTensor(p, rowMajor, "x")
	ev := newEvaluator(p, nil)
	values := ramp(sh.ValueCount())
	ev.bind(in, values)

	forward := &TLayoutConversionC{In: rowMajor, Out: swapped}
	mid, err := forward.Expand(p, []LaidOutCt{in})
	require.NoError(t, err)
	require.Equal(t, values, ev.read(t, mid))

	backward := &TLayoutConversionC{In: swapped, Out: rowMajor}
	back, err := backward.Expand(p, []LaidOutCt{mid})
	require.NoError(t, err)
	require.Equal(t, values, ev.read(t, back))
}

func TestReduceDimExpansion(t *testing.T) {
	ctx := testContext(t, 3)
	sh := tensor.NewShape(2, 4)
	layout := tensor.RowMajorLayout(sh, ctx.ChunkSize())

	p := ctop.NewProgram(ctx)
	in := inputTensor(p, layout, "x")
	ev := newEvaluator(p, nil)
	values := ramp(sh.ValueCount())
	ev.bind(in, values)

	outLayout := tensor.NewLayout(sh.WithDim(1, 1), ctx.ChunkSize(), nil)
	op := &TReduceDimC{In: layout, Out: outLayout, Dim: 1}
	out, err := op.Expand(p, []LaidOutCt{in})
	require.NoError(t, err)
	got := ev.read(t, out)
	require.Equal(t, []float64{1 + 2 + 3 + 4, 5 + 6 + 7 + 8}, got)
}

func TestStrideAndShiftExpansion(t *testing.T) {
	ctx := testContext(t, 4)
	sh := tensor.NewShape(8, 8)
	layout := tensor.RowMajorLayout(sh, ctx.ChunkSize())

	p := ctop.NewProgram(ctx)
	in := inputTensor(p, layout, "x")
	ev := newEvaluator(p, nil)
	values := ramp(sh.ValueCount())
	ev.bind(in, values)

	// Stride [2, 1]: keep every second row.
	strided := StrideOutputShape(sh, []int{2, 1})
	strideOut := tensor.RowMajorLayout(strided, ctx.ChunkSize())
	stride := &TStrideC{In: layout, Out: strideOut, Strides: []int{2, 1}}
	mid, err := stride.Expand(p, []LaidOutCt{in})
	require.NoError(t, err)

	want := make([]float64, strided.ValueCount())
	for r := 0; r < 4; r++ {
		for c := 0; c < 8; c++ {
			want[r*8+c] = values[2*r*8+c]
		}
	}
	require.Equal(t, want, ev.read(t, mid))

	// Unpadded shift by (0, 1): column 0 becomes zero.
	shift := &TUnpaddedShiftC{In: strideOut, Out: strideOut, Offset: []int{0, 1}}
	out, err := shift.Expand(p, []LaidOutCt{mid})
	require.NoError(t, err)
	shifted := make([]float64, strided.ValueCount())
	for r := 0; r < 4; r++ {
		for c := 1; c < 8; c++ {
			shifted[r*8+c] = want[r*8+c-1]
		}
	}
	require.Equal(t, shifted, ev.read(t, out))
}

func TestReorderIsRelabelUnderFillGapsLayouts(t *testing.T) {
	ctx := testContext(t, 2)
	sh := tensor.NewShape(4, 4)
	in := tensor.RowMajorLayout(sh, ctx.ChunkSize())
	// The transposed layout relabels each bit's dimension.
	bits := in.Bits()
	for i, b := range bits {
		if !b.IsGap() {
			db := b.DimensionBit()
			bits[i] = tensor.Bit(1-db.Dimension, db.BitIndex)
		}
	}
	out := tensor.NewLayout(sh, ctx.ChunkSize(), bits)

	op := &TReorderDimsC{In: in, Out: out, Perm: []int{1, 0}}
	require.Equal(t, 0, op.BackendMaskDepth())

	p := ctop.NewProgram(ctx)
	input := inputTensor(p, in, "x")
	expanded, err := op.Expand(p, []LaidOutCt{input})
	require.NoError(t, err)
	// A relabel reuses the input chunks untouched.
	require.Equal(t, input.Chunks()[0].Chunk, expanded.Chunks()[0].Chunk)

	ev := newEvaluator(p, nil)
	values := ramp(sh.ValueCount())
	ev.bind(input, values)
	got := ev.read(t, expanded)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			require.Equal(t, values[c*4+r], got[r*4+c])
		}
	}
}

func TestMulCPUsesIndirection(t *testing.T) {
	ctx := testContext(t, 3)
	sh := tensor.NewShape(8)
	layout := tensor.RowMajorLayout(sh, ctx.ChunkSize())

	p := ctop.NewProgram(ctx)
	in := inputTensor(p, layout, "x")
	weights := []float64{2, 2, 2, 2, 3, 3, 3, 3}
	ev := newEvaluator(p, map[string][]float64{"w": weights})
	values := ramp(sh.ValueCount())
	ev.bind(in, values)

	op := &TMulCP{Layout: layout, PtName: "w", PtLogScale: 30}
	out, err := op.Expand(p, []LaidOutCt{in})
	require.NoError(t, err)
	got := ev.read(t, out)
	for i := range got {
		require.Equal(t, values[i]*weights[i], got[i])
	}
}

func TestEqualAndDigest(t *testing.T) {
	sh := tensor.NewShape(4)
	layout := tensor.RowMajorLayout(sh, tensor.NewLogChunkSize(2))
	a := &TAddCC{Layout: layout}
	b := &TAddCC{Layout: layout}
	require.True(t, Equal(a, b))
	require.Equal(t, Digest(a), Digest(b))

	c := &TMulCC{Layout: layout}
	require.False(t, Equal(a, c))
	require.NotEqual(t, Digest(a), Digest(c))
}
