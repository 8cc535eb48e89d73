package compiler

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/top"
)

func mustContext(t *testing.T, logChunk, logScale, usable int) fhe.Context {
	t.Helper()
	ctx, err := fhe.NewContext(logChunk, logScale, usable, 32)
	require.NoError(t, err)
	return ctx
}

func embryoNode(d *dag.Dag[top.Embryo], e top.Embryo, parents ...*dag.Node[top.Embryo]) *dag.Node[top.Embryo] {
	return d.AddNode(e, parents)
}

func countOps[T any](d *dag.Dag[top.TOp]) int {
	count := 0
	for _, n := range d.TopologicalOrder() {
		if _, ok := n.Value().(T); ok {
			count++
		}
	}
	return count
}

func countScaled[T any](d *dag.Dag[top.Scaled]) int {
	count := 0
	for _, n := range d.TopologicalOrder() {
		if _, ok := n.Value().Op.(T); ok {
			count++
		}
	}
	return count
}

func countLeveled[T any](d *dag.Dag[top.Leveled]) int {
	count := 0
	for _, n := range d.TopologicalOrder() {
		if _, ok := n.Value().Op.(T); ok {
			count++
		}
	}
	return count
}

func countCtOps[T any](p *ctop.Program) int {
	count := 0
	for _, n := range p.Dag().TopologicalOrder() {
		if _, ok := n.Value().(T); ok {
			count++
		}
	}
	return count
}

// S1: element-wise add of two 1-D tensors fitting one chunk.
func TestCompileElementwiseAdd(t *testing.T) {
	sh := tensor.NewShape(8)
	d := dag.New[top.Embryo]()
	a := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "a", LogScale: 30}))
	b := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "b", LogScale: 30}))
	add := embryoNode(d, top.AddCCE{Shape: sh}, a, b)
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, add)

	c := New(mustContext(t, 3, 30, 4), DefaultConfig())
	cp, err := c.Compile(d)
	require.NoError(t, err)

	final := cp.LayoutDags[len(cp.LayoutDags)-1]
	require.Zero(t, countOps[*top.TLayoutConversionC](final))
	require.Zero(t, countScaled[*top.TRescaleC](cp.ScaledDag))
	leveled := cp.LeveledDags[len(cp.LeveledDags)-1]
	require.Zero(t, countLeveled[*top.TBootstrapC](leveled))

	require.Equal(t, 1, countCtOps[ctop.AddCC](cp.Program))
	require.Equal(t, 1, countCtOps[ctop.OutputC](cp.Program))
	require.Equal(t, 2, countCtOps[ctop.InputC](cp.Program))
	require.Zero(t, cp.Report.Bootstraps)
}

// S2: a multiply chain rescales at the waterline and never reaches twice
// the ciphertext scale.
func TestCompileMultiplyChainWaterline(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 3; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	ctx := mustContext(t, 2, 20, 6)
	cp, err := New(ctx, DefaultConfig()).Compile(d)
	require.NoError(t, err)

	// Property: no operand consumed by a non-rescale node sits at or above
	// twice the ciphertext scale.
	for _, n := range cp.ScaledDag.TopologicalOrder() {
		for _, child := range n.Children() {
			if _, ok := child.Value().Op.(*top.TRescaleC); ok {
				continue
			}
			require.Less(t, n.Value().LogScale.Value(), 2*ctx.LogScale().Value(),
				"operand %d exceeds the waterline", n.ID())
		}
	}
	require.Equal(t, 3, countScaled[*top.TRescaleC](cp.ScaledDag))

	// Levels decrement across rescales and stay above the minimum without
	// any bootstrap.
	leveled := cp.LeveledDags[len(cp.LeveledDags)-1]
	require.Zero(t, countLeveled[*top.TBootstrapC](leveled))
	for _, n := range leveled.TopologicalOrder() {
		require.GreaterOrEqual(t, n.Value().Info.Level.Value(), 1)
	}
}

// S3: the same chain with a tight level budget forces a bootstrap chosen by
// the DP.
func TestCompileMultiplyChainBootstraps(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 3; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	ctx := mustContext(t, 2, 20, 3)
	cp, err := New(ctx, DefaultConfig()).Compile(d)
	require.NoError(t, err)

	leveled := cp.LeveledDags[len(cp.LeveledDags)-1]
	require.Equal(t, 1, countLeveled[*top.TBootstrapC](leveled))
	for _, n := range leveled.TopologicalOrder() {
		require.GreaterOrEqual(t, n.Value().Info.Level.Value(), 1)
		if _, ok := n.Value().Op.(*top.TBootstrapC); ok {
			require.Equal(t, ctx.UsableLevels(), n.Value().Info.Level)
		}
	}
}

// S4: structurally identical reorders of the same operand are merged by
// value numbering.
func TestCompileValueNumberingMergesReorders(t *testing.T) {
	sh := tensor.NewShape(4, 4)
	d := dag.New[top.Embryo]()
	a := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "a", LogScale: 30}))
	r1 := embryoNode(d, top.ReorderDimsE{Shape: sh, Perm: []int{1, 0}}, a)
	r2 := embryoNode(d, top.ReorderDimsE{Shape: sh, Perm: []int{1, 0}}, a)
	mul := embryoNode(d, top.MulCCE{Shape: sh}, r1, r2)
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, mul)

	cp, err := New(mustContext(t, 2, 30, 4), DefaultConfig()).Compile(d)
	require.NoError(t, err)

	final := cp.LayoutDags[len(cp.LayoutDags)-1]
	require.Equal(t, 1, countOps[*top.TReorderDimsC](final))
	require.Zero(t, countOps[*top.TLayoutConversionC](final))
}

// S5: stride then unpadded shift compile end to end.
func TestCompileStrideAndShift(t *testing.T) {
	sh := tensor.NewShape(8, 8)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 30}))
	stride := embryoNode(d, top.StrideE{Shape: sh, Strides: []int{2, 1}}, x)
	shift := embryoNode(d, top.UnpaddedShiftE{Shape: tensor.NewShape(4, 8), Offset: []int{0, 1}}, stride)
	embryoNode(d, top.OutputE{Shape: tensor.NewShape(4, 8), Name: "y"}, shift)

	cp, err := New(mustContext(t, 4, 30, 4), DefaultConfig()).Compile(d)
	require.NoError(t, err)
	require.Greater(t, countCtOps[ctop.MulCP](cp.Program), 0)
	require.Greater(t, countCtOps[ctop.RotateC](cp.Program), 0)
}

// S6: an injected redundant bootstrap is pruned.
func TestBootstrapPruningRemovesRedundant(t *testing.T) {
	ctx := mustContext(t, 3, 30, 4)
	sh := tensor.NewShape(8)
	layout := tensor.RowMajorLayout(sh, ctx.ChunkSize())

	d := dag.New[top.Leveled]()
	in := d.AddInput(top.Leveled{
		Op:   &top.TInputC{Layout: layout, Name: "x", LogScale: 30},
		Info: fhe.LevelInfo{Level: ctx.UsableLevels(), LogScale: 30},
	})
	boot := d.AddNode(top.Leveled{
		Op:   &top.TBootstrapC{Layout: layout, UsableLevels: ctx.UsableLevels()},
		Info: fhe.LevelInfo{Level: ctx.UsableLevels(), LogScale: 30},
	}, []*dag.Node[top.Leveled]{in})
	d.AddNode(top.Leveled{
		Op:   &top.TOutputC{Layout: layout, Name: "y"},
		Info: fhe.LevelInfo{Level: ctx.UsableLevels(), LogScale: 30},
	}, []*dag.Node[top.Leveled]{boot})

	out, err := prunePass{}.Do(d)
	require.NoError(t, err)
	require.Zero(t, countLeveled[*top.TBootstrapC](out))
	require.NoError(t, checkLevels("test", out))
}

// Pruning keeps a bootstrap whose removal would underflow.
func TestBootstrapPruningKeepsNecessary(t *testing.T) {
	ctx := mustContext(t, 2, 20, 2)
	sh := tensor.NewShape(4)
	layout := tensor.RowMajorLayout(sh, ctx.ChunkSize())

	d := dag.New[top.Leveled]()
	in := d.AddInput(top.Leveled{
		Op:   &top.TInputC{Layout: layout, Name: "x", LogScale: 20},
		Info: fhe.LevelInfo{Level: 1, LogScale: 20},
	})
	boot := d.AddNode(top.Leveled{
		Op:   &top.TBootstrapC{Layout: layout, UsableLevels: 2},
		Info: fhe.LevelInfo{Level: 2, LogScale: 20},
	}, []*dag.Node[top.Leveled]{in})
	d.AddNode(top.Leveled{
		Op:   &top.TRescaleC{Layout: layout, Amount: 20},
		Info: fhe.LevelInfo{Level: 1, LogScale: 20},
	}, []*dag.Node[top.Leveled]{boot})

	out, err := prunePass{}.Do(d)
	require.NoError(t, err)
	require.Equal(t, 1, countLeveled[*top.TBootstrapC](out))
}

func sprintTOpDag(d *dag.Dag[top.TOp]) string {
	var sb strings.Builder
	w := serial.NewWriter(&sb)
	dag.Write(w, d, func(w *serial.Writer, op top.TOp) { top.WriteTOp(w, op) })
	return sb.String()
}

// Property 8: value numbering is idempotent.
func TestValueNumberingIdempotent(t *testing.T) {
	sh := tensor.NewShape(4, 4)
	d := dag.New[top.Embryo]()
	a := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "a", LogScale: 30}))
	r1 := embryoNode(d, top.ReorderDimsE{Shape: sh, Perm: []int{1, 0}}, a)
	r2 := embryoNode(d, top.ReorderDimsE{Shape: sh, Perm: []int{1, 0}}, a)
	mul := embryoNode(d, top.MulCCE{Shape: sh}, r1, r2)
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, mul)

	lp := layoutPass{ctx: mustContext(t, 2, 30, 4), policy: fillGapsPolicy{}, ignoreChetRepack: true}
	laid, err := lp.Do(d)
	require.NoError(t, err)

	once, err := valueNumberingPass{}.Do(laid)
	require.NoError(t, err)
	twice, err := valueNumberingPass{}.Do(once)
	require.NoError(t, err)

	onceStr := sprintTOpDag(once)
	// The second run merges nothing; modulo the fresh ids of the clone, the
	// serialised IR is unchanged.
	reclone, err := valueNumberingPass{}.Do(once)
	require.NoError(t, err)
	require.Equal(t, sprintTOpDag(reclone), sprintTOpDag(twice))
	require.Equal(t, len(once.TopologicalOrder()), len(twice.TopologicalOrder()))
	require.NotEmpty(t, onceStr)
}

// Hoisting swaps a conversion below a reorder when not more expensive.
func TestHoistingSwapsConversion(t *testing.T) {
	ctx := mustContext(t, 2, 30, 4)
	sh := tensor.NewShape(4, 4)
	rowMajor := tensor.RowMajorLayout(sh, ctx.ChunkSize())
	target := tensor.NewLayout(sh, ctx.ChunkSize(),
		[]tensor.LayoutBit{tensor.Bit(1, 0), tensor.Bit(0, 0)})

	d := dag.New[top.TOp]()
	in := d.AddInput(top.TOp(&top.TInputC{Layout: rowMajor, Name: "x", LogScale: 30}))
	reorderOut := reorderOutputLayout(rowMajor, []int{1, 0}, sh)
	reorder := d.AddNode(top.TOp(&top.TReorderDimsC{In: rowMajor, Out: reorderOut, Perm: []int{1, 0}}),
		[]*dag.Node[top.TOp]{in})
	d.AddNode(top.TOp(&top.TLayoutConversionC{In: reorderOut, Out: target}),
		[]*dag.Node[top.TOp]{reorder})

	out, err := hoistingPass{}.Do(d)
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	// The conversion now sits directly on the input; the reorder consumes
	// its output.
	order := out.TopologicalOrder()
	require.Len(t, order, 3)
	_, isConv := order[1].Value().(*top.TLayoutConversionC)
	require.True(t, isConv)
	_, isReorder := order[2].Value().(*top.TReorderDimsC)
	require.True(t, isReorder)
	require.True(t, order[2].Value().OutputLayout().Equal(target))
}

// Hoisting refuses to cross a stride (non-invertible layout rule).
func TestHoistingRefusesStride(t *testing.T) {
	ctx := mustContext(t, 3, 30, 4)
	sh := tensor.NewShape(8)
	rowMajor := tensor.RowMajorLayout(sh, ctx.ChunkSize())

	d := dag.New[top.TOp]()
	in := d.AddInput(top.TOp(&top.TInputC{Layout: rowMajor, Name: "x", LogScale: 30}))
	strideOut := strideOutputLayout(rowMajor, []int{2}, tensor.NewShape(4))
	stride := d.AddNode(top.TOp(&top.TStrideC{In: rowMajor, Out: strideOut, Strides: []int{2}}),
		[]*dag.Node[top.TOp]{in})
	target := fillGaps(strideOut)
	d.AddNode(top.TOp(&top.TLayoutConversionC{In: strideOut, Out: target}),
		[]*dag.Node[top.TOp]{stride})

	out, err := hoistingPass{}.Do(d)
	require.NoError(t, err)
	order := out.TopologicalOrder()
	require.Len(t, order, 3)
	_, isStride := order[1].Value().(*top.TStrideC)
	require.True(t, isStride, "stride must stay above the conversion")
}

// The conversion decomposer bounds every conversion's tentacle estimate.
func TestConversionDecomposer(t *testing.T) {
	ctx := mustContext(t, 3, 30, 4)
	sh := tensor.NewShape(8)
	rowMajor := tensor.RowMajorLayout(sh, ctx.ChunkSize())
	reversed := tensor.NewLayout(sh, ctx.ChunkSize(),
		[]tensor.LayoutBit{tensor.Bit(0, 2), tensor.Bit(0, 0), tensor.Bit(0, 1)})

	d := dag.New[top.TOp]()
	in := d.AddInput(top.TOp(&top.TInputC{Layout: rowMajor, Name: "x", LogScale: 30}))
	d.AddNode(top.TOp(&top.TLayoutConversionC{In: rowMajor, Out: reversed}),
		[]*dag.Node[top.TOp]{in})
	require.Greater(t, tensor.ConversionTentacles(rowMajor, reversed), 4)

	out, err := conversionDecomposerPass{maxTentacles: 4}.Do(d)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	conversions := 0
	for _, n := range out.TopologicalOrder() {
		if conv, ok := n.Value().(*top.TLayoutConversionC); ok {
			conversions++
			require.LessOrEqual(t, tensor.ConversionTentacles(conv.In, conv.Out), 4)
		}
	}
	require.Greater(t, conversions, 1)
}

// Property 2: every pass's nodes reference only ids of the previous DAG.
func TestAncestryCompleteness(t *testing.T) {
	sh := tensor.NewShape(8)
	d := dag.New[top.Embryo]()
	a := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "a", LogScale: 30}))
	b := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "b", LogScale: 30}))
	add := embryoNode(d, top.AddCCE{Shape: sh}, a, b)
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, add)

	cp, err := New(mustContext(t, 3, 30, 4), DefaultConfig()).Compile(d)
	require.NoError(t, err)

	records := cp.Passes()
	for i := 1; i < len(records); i++ {
		prevIDs := map[int]struct{}{}
		for id := range records[i-1].Archive {
			prevIDs[id] = struct{}{}
		}
		for dest, srcs := range records[i].Archive {
			require.NotEmpty(t, srcs, "pass %s node %d has no ancestors", records[i].ID, dest)
			for _, src := range srcs {
				_, ok := prevIDs[src]
				require.True(t, ok, "pass %s node %d references unknown ancestor %d", records[i].ID, dest, src)
			}
		}
	}

	// Archives compose end to end.
	composed, err := cp.ArchiveBetween(len(records)-1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, composed)
}

// Property 9: the ct program round-trips through its textual form.
func TestProgramSerialisationRoundTrip(t *testing.T) {
	sh := tensor.NewShape(8, 8)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 30}))
	stride := embryoNode(d, top.StrideE{Shape: sh, Strides: []int{2, 1}}, x)
	embryoNode(d, top.OutputE{Shape: tensor.NewShape(4, 8), Name: "y"}, stride)

	cp, err := New(mustContext(t, 4, 30, 4), DefaultConfig()).Compile(d)
	require.NoError(t, err)

	var sb strings.Builder
	w := serial.NewWriter(&sb)
	cp.Program.Write(w)
	require.NoError(t, w.Err())

	back, err := ctop.ReadProgram(serial.NewScanner(strings.NewReader(sb.String())))
	require.NoError(t, err)

	var sb2 strings.Builder
	w2 := serial.NewWriter(&sb2)
	back.Write(w2)
	require.NoError(t, w2.Err())
	require.Empty(t, cmp.Diff(sb.String(), sb2.String()))
}

// Leveled and scaled IRs round-trip too.
func TestIRSerialisationRoundTrip(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 3; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	cp, err := New(mustContext(t, 2, 20, 3), DefaultConfig()).Compile(d)
	require.NoError(t, err)

	var sb strings.Builder
	w := serial.NewWriter(&sb)
	dag.Write(w, cp.ScaledDag, func(w *serial.Writer, s top.Scaled) { top.WriteScaled(w, s) })
	require.NoError(t, w.Err())
	scaledBack, err := dag.Read(serial.NewScanner(strings.NewReader(sb.String())), top.ReadScaled)
	require.NoError(t, err)
	var sb2 strings.Builder
	w2 := serial.NewWriter(&sb2)
	dag.Write(w2, scaledBack, func(w *serial.Writer, s top.Scaled) { top.WriteScaled(w, s) })
	require.Equal(t, sb.String(), sb2.String())

	leveled := cp.LeveledDags[len(cp.LeveledDags)-1]
	var lb strings.Builder
	lw := serial.NewWriter(&lb)
	dag.Write(lw, leveled, func(w *serial.Writer, l top.Leveled) { top.WriteLeveled(w, l) })
	require.NoError(t, lw.Err())
	leveledBack, err := dag.Read(serial.NewScanner(strings.NewReader(lb.String())), top.ReadLeveled)
	require.NoError(t, err)
	var lb2 strings.Builder
	lw2 := serial.NewWriter(&lb2)
	dag.Write(lw2, leveledBack, func(w *serial.Writer, l top.Leveled) { top.WriteLeveled(w, l) })
	require.Equal(t, lb.String(), lb2.String())
}

// The chet pipeline: repack shower, chet layouts, row-major hack and lazy
// bootstrapping at repack boundaries.
func TestCompileChetPipeline(t *testing.T) {
	sh := tensor.NewShape(8)
	d := dag.New[top.Embryo]()
	a := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "a", LogScale: 30}))
	b := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "b", LogScale: 30}))
	add := embryoNode(d, top.AddCCE{Shape: sh}, a, b)
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, add)

	cfg := DefaultConfig()
	cfg.LayoutPolicy = LayoutChet
	cfg.RowMajorHack = true
	cfg.RepackShower = true
	cfg.LevelingPolicy = LevelingChetLazy

	cp, err := New(mustContext(t, 3, 30, 4), cfg).Compile(d)
	require.NoError(t, err)
	require.Equal(t, 1, countCtOps[ctop.AddCC](cp.Program))
	require.Equal(t, 2, countCtOps[ctop.InputC](cp.Program))
}

func TestReportSummarisesCompilation(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 3; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	cp, err := New(mustContext(t, 2, 20, 3), DefaultConfig()).Compile(d)
	require.NoError(t, err)
	require.NotEmpty(t, cp.Report.Passes)
	require.Equal(t, 1, cp.Report.Bootstraps)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("layout_policy: chet\nleveling_policy: lazy\nmax_tentacles: 32\n"))
	require.NoError(t, err)
	require.Equal(t, LayoutChet, cfg.LayoutPolicy)
	require.Equal(t, LevelingLazy, cfg.LevelingPolicy)
	require.Equal(t, 32, cfg.MaxTentacles)

	_, err = ParseConfig([]byte("max_tentacles: 3\n"))
	require.Error(t, err)

	_, err = ParseConfig([]byte("layout_policy: nope\n"))
	require.Error(t, err)
}

func TestNoopLevelingUnderflows(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 4; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	cfg := DefaultConfig()
	cfg.LevelingPolicy = LevelingNoop
	_, err := New(mustContext(t, 2, 20, 2), cfg).Compile(d)
	var pe *PassError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, KindLevelUnderflow, pe.Kind)
}

func TestLazyLevelingBootstraps(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 4; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	cfg := DefaultConfig()
	cfg.LevelingPolicy = LevelingLazy
	cp, err := New(mustContext(t, 2, 20, 2), cfg).Compile(d)
	require.NoError(t, err)
	leveled := cp.LeveledDags[len(cp.LeveledDags)-1]
	require.Greater(t, countLeveled[*top.TBootstrapC](leveled), 0)
	for _, n := range leveled.TopologicalOrder() {
		require.GreaterOrEqual(t, n.Value().Info.Level.Value(), 1)
	}
}

func TestMergeStrideChains(t *testing.T) {
	sh := tensor.NewShape(16)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 30}))
	s1 := embryoNode(d, top.StrideE{Shape: sh, Strides: []int{2}}, x)
	s2 := embryoNode(d, top.StrideE{Shape: tensor.NewShape(8), Strides: []int{2}}, s1)
	embryoNode(d, top.OutputE{Shape: tensor.NewShape(4), Name: "y"}, s2)

	merged, err := mergeStrideChainPass{}.Do(d)
	require.NoError(t, err)
	require.NoError(t, merged.Validate())

	strides := 0
	for _, n := range merged.TopologicalOrder() {
		if e, ok := n.Value().(top.StrideE); ok {
			strides++
			require.True(t, e.Merged())
			require.Equal(t, []int{4}, e.Strides)
		}
	}
	require.Equal(t, 1, strides)
}

// The level minimisation pass only ever lowers levels and keeps them
// sufficient for every child.
func TestLevelMinimization(t *testing.T) {
	sh := tensor.NewShape(4)
	d := dag.New[top.Embryo]()
	x := d.AddInput(top.Embryo(top.InputE{Shape: sh, Name: "x", LogScale: 20}))
	cur := x
	for i := 0; i < 2; i++ {
		cur = embryoNode(d, top.MulCCE{Shape: sh}, cur, x)
	}
	embryoNode(d, top.OutputE{Shape: sh, Name: "y"}, cur)

	cp, err := New(mustContext(t, 2, 20, 6), DefaultConfig()).Compile(d)
	require.NoError(t, err)

	for _, n := range cp.Program.Dag().TopologicalOrder() {
		level := n.Value().LevelInfo().Level
		for _, child := range n.Children() {
			require.GreaterOrEqual(t, level.Value(), requiredLevel(child).Value(),
				"node %d too low for child %d", n.ID(), child.ID())
		}
	}
}
