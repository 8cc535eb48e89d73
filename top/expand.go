package top

import (
	"fmt"

	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/tuneinsight/tensorc/utils"
	"golang.org/x/exp/slices"
)

// MaskedRotation is one step of a layout realisation: take the source
// chunk, zero every slot not in SrcSlots, rotate left by Shift and add into
// the destination chunk.
type MaskedRotation struct {
	SrcOffset int
	DstOffset int
	Shift     int
	SrcSlots  []int
}

// ConversionPlanner decides the masked rotations realising a layout
// conversion. Implementations must cover every non-gap destination slot
// exactly once and must not route any source slot into a destination gap;
// gaps therefore decrypt to zero.
type ConversionPlanner interface {
	Plan(in, out tensor.Layout) ([]MaskedRotation, error)
}

// GreedyPlanner is the default planner: one masked rotation per
// (source chunk, rotation amount) class.
type GreedyPlanner struct{}

// Plan implements ConversionPlanner.
func (GreedyPlanner) Plan(in, out tensor.Layout) ([]MaskedRotation, error) {
	if !in.GetShape().Equal(out.GetShape()) {
		return nil, fmt.Errorf("top: conversion between shapes %v and %v", in.GetShape(), out.GetShape())
	}
	if !in.ChunkSize().Equal(out.ChunkSize()) {
		return nil, fmt.Errorf("top: conversion between chunk sizes %d and %d", in.ChunkSize().Value(), out.ChunkSize().Value())
	}
	return planGather(in, out, identitySources), nil
}

// DefaultPlanner realises every layout conversion; it is pluggable so that
// a rotation-search backend can substitute a cheaper plan.
var DefaultPlanner ConversionPlanner = GreedyPlanner{}

type sourcesFunc func(out tensor.Index) []tensor.Index

func identitySources(out tensor.Index) []tensor.Index {
	return []tensor.Index{out}
}

type rotationKey struct {
	srcOffset int
	shift     int
}

// planGather groups, per destination chunk, the source slots by
// (source chunk, rotation amount).
func planGather(in, out tensor.Layout, sources sourcesFunc) []MaskedRotation {
	n := out.ChunkSize().Value()
	var plan []MaskedRotation
	for _, dstOffset := range out.ChunkOffsets() {
		groups := map[rotationKey][]int{}
		for slot, idx := range out.TensorIndices(dstOffset) {
			if idx == nil {
				continue
			}
			for _, src := range sources(*idx) {
				srcOffset, srcSlot := in.ChunkAndSlot(src)
				shift := ((srcSlot-slot)%n + n) % n
				key := rotationKey{srcOffset: srcOffset, shift: shift}
				groups[key] = append(groups[key], srcSlot)
			}
		}
		keys := make([]rotationKey, 0, len(groups))
		for key := range groups {
			keys = append(keys, key)
		}
		slices.SortFunc(keys, func(a, b rotationKey) bool {
			if a.srcOffset != b.srcOffset {
				return a.srcOffset < b.srcOffset
			}
			return a.shift < b.shift
		})
		for _, key := range keys {
			srcSlots := utils.GetDistincts(groups[key])
			slices.Sort(srcSlots)
			plan = append(plan, MaskedRotation{
				SrcOffset: key.srcOffset,
				DstOffset: dstOffset,
				Shift:     key.shift,
				SrcSlots:  srcSlots,
			})
		}
	}
	return plan
}

// isRelabel reports whether the mapping is the identity on (chunk, slot)
// positions, so that the realisation is a pure relabeling with no
// ciphertext operations.
func isRelabel(in, out tensor.Layout, sources sourcesFunc) bool {
	if !in.ChunkSize().Equal(out.ChunkSize()) {
		return false
	}
	inOffsets := in.ChunkOffsets()
	outOffsets := out.ChunkOffsets()
	if !slices.Equal(inOffsets, outOffsets) {
		return false
	}
	for _, offset := range outOffsets {
		inIndices := in.TensorIndices(offset)
		outIndices := out.TensorIndices(offset)
		for slot := range outIndices {
			inIdx, outIdx := inIndices[slot], outIndices[slot]
			if (inIdx == nil) != (outIdx == nil) {
				return false
			}
			if outIdx == nil {
				continue
			}
			srcs := sources(*outIdx)
			if len(srcs) != 1 || !srcs[0].Equal(*inIdx) {
				return false
			}
		}
	}
	return true
}

func gatherMaskDepth(in, out tensor.Layout, sources sourcesFunc) int {
	if isRelabel(in, out, sources) {
		return 0
	}
	return 1
}

func (o *TReduceDimC) sources(out tensor.Index) []tensor.Index {
	srcs := make([]tensor.Index, 0, o.In.GetShape().Dim(o.Dim))
	for k := 0; k < o.In.GetShape().Dim(o.Dim); k++ {
		coords := out.Coords()
		coords[o.Dim] = k
		srcs = append(srcs, tensor.NewIndex(o.In.GetShape(), coords...))
	}
	return srcs
}

func (o *TReplicateDimC) sources(out tensor.Index) []tensor.Index {
	coords := out.Coords()
	coords[o.Dim] %= o.In.GetShape().Dim(o.Dim)
	return []tensor.Index{tensor.NewIndex(o.In.GetShape(), coords...)}
}

func (o *TReorderDimsC) sources(out tensor.Index) []tensor.Index {
	coords := make([]int, o.In.GetShape().DimensionCount())
	for i, p := range o.Perm {
		coords[p] = out.Coord(i)
	}
	return []tensor.Index{tensor.NewIndex(o.In.GetShape(), coords...)}
}

func (o *TResizeDimC) sources(out tensor.Index) []tensor.Index {
	coords := out.Coords()
	for d, c := range coords {
		if c >= o.In.GetShape().Dim(d) {
			return nil
		}
	}
	return []tensor.Index{tensor.NewIndex(o.In.GetShape(), coords...)}
}

func (o *TDropDimC) sources(out tensor.Index) []tensor.Index {
	coords := slices.Insert(out.Coords(), o.Dim, 0)
	return []tensor.Index{tensor.NewIndex(o.In.GetShape(), coords...)}
}

func (o *TInsertDimC) sources(out tensor.Index) []tensor.Index {
	coords := slices.Delete(out.Coords(), o.Dim, o.Dim+1)
	return []tensor.Index{tensor.NewIndex(o.In.GetShape(), coords...)}
}

func (o *TStrideC) sources(out tensor.Index) []tensor.Index {
	coords := out.Coords()
	for d := range coords {
		coords[d] *= o.Strides[d]
	}
	return []tensor.Index{tensor.NewIndex(o.In.GetShape(), coords...)}
}

func (o *TCyclicShiftC) sources(out tensor.Index) []tensor.Index {
	diff := tensor.NewDiffIndex(o.In.GetShape(), o.Offset...)
	return []tensor.Index{diff.Negate().CyclicAdd(out)}
}

func (o *TUnpaddedShiftC) sources(out tensor.Index) []tensor.Index {
	diff := tensor.NewDiffIndex(o.In.GetShape(), o.Offset...)
	src, ok := diff.Negate().Add(out)
	if !ok {
		return nil
	}
	return []tensor.Index{src}
}

// maskedLevelInfo is the level info of a chunk after a backend mask.
func maskedLevelInfo(p *ctop.Program, li fhe.LevelInfo) fhe.LevelInfo {
	return fhe.LevelInfo{Level: li.Level, LogScale: li.LogScale + p.Context().LogScale()}
}

func chunkInfo(c Chunk) fhe.LevelInfo {
	return c.Value().LevelInfo()
}

func ctAddCC(p *ctop.Program, a, b Chunk) Chunk {
	la, lb := chunkInfo(a), chunkInfo(b)
	li := fhe.LevelInfo{
		Level:    fhe.Level(utils.MinSlice([]int{la.Level.Value(), lb.Level.Value()})),
		LogScale: fhe.LogScale(utils.MaxSlice([]int{la.LogScale.Value(), lb.LogScale.Value()})),
	}
	return p.AddNode(ctop.AddCC{Info: li}, a, b)
}

func ctMulCC(p *ctop.Program, a, b Chunk) Chunk {
	la, lb := chunkInfo(a), chunkInfo(b)
	li := fhe.LevelInfo{
		Level:    fhe.Level(utils.MinSlice([]int{la.Level.Value(), lb.Level.Value()})),
		LogScale: la.LogScale + lb.LogScale,
	}
	return p.AddNode(ctop.MulCC{Info: li}, a, b)
}

func ctAddCP(p *ctop.Program, a Chunk, handle string, ptScale fhe.LogScale) Chunk {
	la := chunkInfo(a)
	li := fhe.LevelInfo{
		Level:    la.Level,
		LogScale: fhe.LogScale(utils.MaxSlice([]int{la.LogScale.Value(), ptScale.Value()})),
	}
	return p.AddNode(ctop.AddCP{Handle: handle, Info: li}, a)
}

func ctMulCP(p *ctop.Program, a Chunk, handle string, ptScale fhe.LogScale) Chunk {
	la := chunkInfo(a)
	li := fhe.LevelInfo{Level: la.Level, LogScale: la.LogScale + ptScale}
	return p.AddNode(ctop.MulCP{Handle: handle, Info: li}, a)
}

func ctMulMask(p *ctop.Program, a Chunk, srcSlots []int) Chunk {
	mask := ctop.Mask{Size: p.Context().ChunkSize().Value(), Ones: srcSlots}
	return ctMulCP(p, a, p.AddChunk(mask), p.Context().LogScale())
}

func ctAddCS(p *ctop.Program, a Chunk, scalar fhe.ScaledValue) Chunk {
	la := chunkInfo(a)
	li := fhe.LevelInfo{
		Level:    la.Level,
		LogScale: fhe.LogScale(utils.MaxSlice([]int{la.LogScale.Value(), scalar.LogScale.Value()})),
	}
	return p.AddNode(ctop.AddCS{Scalar: scalar, Info: li}, a)
}

func ctMulCS(p *ctop.Program, a Chunk, scalar fhe.ScaledValue) Chunk {
	la := chunkInfo(a)
	li := fhe.LevelInfo{Level: la.Level, LogScale: la.LogScale + scalar.LogScale}
	return p.AddNode(ctop.MulCS{Scalar: scalar, Info: li}, a)
}

func ctRotate(p *ctop.Program, a Chunk, shift int) Chunk {
	return p.AddNode(ctop.RotateC{Shift: shift, Info: chunkInfo(a)}, a)
}

func ctRescale(p *ctop.Program, a Chunk, amount fhe.LogScale) Chunk {
	la := chunkInfo(a)
	li := fhe.LevelInfo{Level: la.Level - 1, LogScale: la.LogScale - amount}
	return p.AddNode(ctop.RescaleC{Amount: amount, Info: li}, a)
}

func ctBootstrap(p *ctop.Program, a Chunk, usable fhe.Level) Chunk {
	li := fhe.LevelInfo{Level: usable, LogScale: chunkInfo(a).LogScale}
	return p.AddNode(ctop.BootstrapC{Info: li}, a)
}

func ctZero(p *ctop.Program, li fhe.LevelInfo) Chunk {
	return p.AddInput(ctop.ZeroC{Info: li})
}

// expandPlan realises a masked-rotation plan over the input chunks.
func expandPlan(p *ctop.Program, input LaidOutCt, outLayout tensor.Layout, plan []MaskedRotation) LaidOutCt {
	byDst := map[int][]MaskedRotation{}
	for _, mr := range plan {
		byDst[mr.DstOffset] = append(byDst[mr.DstOffset], mr)
	}
	zeroInfo := maskedLevelInfo(p, chunkInfo(input.Chunks()[0].Chunk))
	chunks := make([]tensor.LaidOutChunk[Chunk], 0, len(outLayout.ChunkOffsets()))
	for _, dstOffset := range outLayout.ChunkOffsets() {
		var acc Chunk
		for _, mr := range byDst[dstOffset] {
			piece := ctMulMask(p, input.ChunkAt(mr.SrcOffset), mr.SrcSlots)
			if mr.Shift != 0 {
				piece = ctRotate(p, piece, mr.Shift)
			}
			if acc == nil {
				acc = piece
			} else {
				acc = ctAddCC(p, acc, piece)
			}
		}
		if acc == nil {
			acc = ctZero(p, zeroInfo)
		}
		chunks = append(chunks, tensor.LaidOutChunk[Chunk]{Offset: dstOffset, Chunk: acc})
	}
	return tensor.NewLaidOutTensor(outLayout, chunks)
}

// expandGather realises a data-movement operator: a pure relabel when the
// layouts line up, masked rotations otherwise.
func expandGather(p *ctop.Program, input LaidOutCt, in, out tensor.Layout, sources sourcesFunc) (LaidOutCt, error) {
	if !input.Layout().Equal(in) {
		return LaidOutCt{}, fmt.Errorf("top: operand layout %v does not match declared input layout %v", input.Layout(), in)
	}
	if isRelabel(in, out, sources) {
		return tensor.WithLayout(input, out), nil
	}
	return expandPlan(p, input, out, planGather(in, out, sources)), nil
}

func elementwiseInputs(inputs []LaidOutCt, want int, layout tensor.Layout) error {
	if len(inputs) != want {
		return fmt.Errorf("top: got %d operands, want %d", len(inputs), want)
	}
	for _, in := range inputs {
		if !in.Layout().Equal(layout) {
			return fmt.Errorf("top: operand layout %v does not match %v", in.Layout(), layout)
		}
	}
	return nil
}

// CreateInputTensor emits one InputC chunk per chunk offset at the given
// level info.
func (o *TInputC) CreateInputTensor(p *ctop.Program, li fhe.LevelInfo) LaidOutCt {
	chunks := make([]tensor.LaidOutChunk[Chunk], 0, o.Layout.TotalChunks())
	for _, offset := range o.Layout.ChunkOffsets() {
		in := p.AddInput(ctop.InputC{Spec: ctop.ChunkSpec{Name: o.Name, Offset: offset}, Info: li})
		chunks = append(chunks, tensor.LaidOutChunk[Chunk]{Offset: offset, Chunk: in})
	}
	return tensor.NewLaidOutTensor(o.Layout, chunks)
}

// Expand on TInputC requires the node's level info; the leveled wrapper
// calls CreateInputTensor instead.
func (o *TInputC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return LaidOutCt{}, fmt.Errorf("top: TInputC expands through CreateInputTensor")
}

func (o *TOutputC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	out := tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		spec := ctop.ChunkSpec{Name: o.Name, Offset: offset}
		return p.AddNode(ctop.OutputC{Spec: spec, Info: chunkInfo(c)}, c)
	})
	return out, nil
}

func (o *TAddCC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 2, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctAddCC(p, c, inputs[1].ChunkAt(offset))
	}), nil
}

func (o *TMulCC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 2, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctMulCC(p, c, inputs[1].ChunkAt(offset))
	}), nil
}

// ptChunkHandle stores the plaintext chunk of a named tensor at one chunk
// offset of a layout.
func ptChunkHandle(p *ctop.Program, layout tensor.Layout, name string, offset int) string {
	indices := layout.TensorIndices(offset)
	flat := make([]int, len(indices))
	for i, idx := range indices {
		if idx == nil {
			flat[i] = ctop.NoIndex
		} else {
			flat[i] = idx.Flat()
		}
	}
	return p.AddChunk(ctop.Indirection{Tensor: name, FlatIndices: flat})
}

func (o *TAddCP) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctAddCP(p, c, ptChunkHandle(p, o.Layout, o.PtName, offset), o.PtLogScale)
	}), nil
}

func (o *TMulCP) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctMulCP(p, c, ptChunkHandle(p, o.Layout, o.PtName, offset), o.PtLogScale)
	}), nil
}

func (o *TAddCS) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctAddCS(p, c, o.Scalar)
	}), nil
}

func (o *TMulCS) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctMulCS(p, c, o.Scalar)
	}), nil
}

func (o *TRotateC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctRotate(p, c, o.Shift)
	}), nil
}

func (o *TRescaleC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctRescale(p, c, o.Amount)
	}), nil
}

func (o *TBootstrapC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if err := elementwiseInputs(inputs, 1, o.Layout); err != nil {
		return LaidOutCt{}, err
	}
	return tensor.MapChunks(inputs[0], func(offset int, c Chunk) Chunk {
		return ctBootstrap(p, c, o.UsableLevels)
	}), nil
}

func (o *TReduceDimC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TReplicateDimC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TReorderDimsC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TResizeDimC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TDropDimC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TInsertDimC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TStrideC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TCyclicShiftC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TUnpaddedShiftC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, o.sources)
}

func (o *TLayoutConversionC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	if !inputs[0].Layout().Equal(o.In) {
		return LaidOutCt{}, fmt.Errorf("top: operand layout %v does not match conversion input %v", inputs[0].Layout(), o.In)
	}
	plan, err := DefaultPlanner.Plan(o.In, o.Out)
	if err != nil {
		return LaidOutCt{}, err
	}
	return expandPlan(p, inputs[0], o.Out, plan), nil
}

func (o *TChetRepackC) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	return expandGather(p, inputs[0], o.In, o.Out, identitySources)
}
