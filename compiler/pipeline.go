package compiler

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/top"
)

// Compiler drives the lowering pipeline. Passes run in a fixed order and
// produce byte-identical IR for identical inputs, context and
// configuration.
type Compiler struct {
	Context fhe.Context
	Config  Config
	Log     zerolog.Logger
}

// New returns a Compiler over the given context and configuration.
func New(ctx fhe.Context, cfg Config) *Compiler {
	return &Compiler{Context: ctx, Config: cfg, Log: zerolog.Nop()}
}

func checkLevels(pass string, d *dag.Dag[top.Leveled]) error {
	for _, n := range d.TopologicalOrder() {
		if n.Value().Info.Level < fhe.MinLevel {
			return passErr(pass, KindLevelUnderflow, []int{n.ID()},
				"node at level %d", n.Value().Info.Level.Value())
		}
	}
	return nil
}

// Compile lowers an embryo DAG to a ciphertext program, retaining every
// intermediate IR and the provenance archive chain.
func (c *Compiler) Compile(embryo *dag.Dag[top.Embryo]) (cp *CompiledProgram, err error) {
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*PassError); ok {
				cp, err = nil, pe
				return
			}
			panic(r)
		}
	}()

	cp = &CompiledProgram{Context: c.Context}
	record := func(name string, archive dag.Archive, nodes int) {
		id := PassID{Index: len(cp.records), Name: name}
		cp.records = append(cp.records, PassRecord{ID: id, Archive: archive, NodeCount: nodes})
		c.Log.Debug().Str("pass", id.String()).Int("nodes", nodes).Msg("pass complete")
	}
	structural := func(name string, err error) error {
		return passErr(name, KindStructural, nil, "%v", err)
	}

	// Embryo optimisers.
	cur := embryo
	record("embryo_input", dag.NewArchive(cur), len(cur.TopologicalOrder()))
	if c.Config.MergeStrideChains {
		cur, err = (mergeStrideChainPass{}).Do(cur)
		if err != nil {
			return nil, err
		}
		if err := cur.Validate(); err != nil {
			return nil, structural("merge_stride_chain_pass", err)
		}
		record("merge_stride_chain_pass", dag.NewArchive(cur), len(cur.TopologicalOrder()))
	}
	if c.Config.RepackShower {
		cur, err = (repackShoweringPass{}).Do(cur)
		if err != nil {
			return nil, err
		}
		if err := cur.Validate(); err != nil {
			return nil, structural("repack_showering_pass", err)
		}
		record("repack_showering_pass", dag.NewArchive(cur), len(cur.TopologicalOrder()))
	}
	cp.EmbryoDag = cur

	// Layout assignment and optimisers.
	lp := layoutPass{
		ctx:              c.Context,
		ignoreChetRepack: c.Config.LayoutPolicy == LayoutFillGaps,
		rowMajorHack:     c.Config.RowMajorHack,
	}
	if c.Config.LayoutPolicy == LayoutChet {
		lp.policy = chetPolicy{}
	} else {
		lp.policy = fillGapsPolicy{}
	}
	laid, err := lp.Do(cur)
	if err != nil {
		return nil, err
	}
	if err := laid.Validate(); err != nil {
		return nil, structural(lp.Name(), err)
	}
	record(lp.Name(), dag.NewArchive(laid), len(laid.TopologicalOrder()))
	cp.LayoutDags = append(cp.LayoutDags, laid)

	type layoutOpt interface {
		Name() string
		Do(*dag.Dag[top.TOp]) (*dag.Dag[top.TOp], error)
	}
	for _, opt := range []layoutOpt{
		hoistingPass{},
		valueNumberingPass{},
		inputLayoutPass{},
		conversionDecomposerPass{maxTentacles: c.Config.MaxTentacles},
	} {
		laid, err = opt.Do(laid)
		if err != nil {
			return nil, err
		}
		if err := laid.Validate(); err != nil {
			return nil, structural(opt.Name(), err)
		}
		record(opt.Name(), dag.NewArchive(laid), len(laid.TopologicalOrder()))
		cp.LayoutDags = append(cp.LayoutDags, laid)
	}

	// Rescaling.
	rescale := rescalingPass{ctx: c.Context}
	scaled, err := rescale.Do(laid)
	if err != nil {
		return nil, err
	}
	if err := scaled.Validate(); err != nil {
		return nil, structural(rescale.Name(), err)
	}
	record(rescale.Name(), dag.NewArchive(scaled), len(scaled.TopologicalOrder()))
	cp.ScaledDag = scaled

	// Leveling.
	type levelingPass interface {
		Name() string
		Do(*dag.Dag[top.Scaled]) (*dag.Dag[top.Leveled], error)
	}
	var leveler levelingPass
	switch c.Config.LevelingPolicy {
	case LevelingDP:
		leveler = dpLevelingPass{ctx: c.Context}
	case LevelingLazy:
		leveler = lazyLevelingPass{ctx: c.Context}
	case LevelingChetLazy:
		leveler = lazyLevelingPass{ctx: c.Context, onlyAtRepacks: true}
	default:
		leveler = noopLevelingPass{ctx: c.Context}
	}
	leveled, err := leveler.Do(scaled)
	if err != nil {
		return nil, err
	}
	if err := leveled.Validate(); err != nil {
		return nil, structural(leveler.Name(), err)
	}
	if err := checkLevels(leveler.Name(), leveled); err != nil {
		return nil, err
	}
	record(leveler.Name(), dag.NewArchive(leveled), len(leveled.TopologicalOrder()))
	cp.LeveledDags = append(cp.LeveledDags, leveled)

	if c.Config.PruneBootstraps && c.Config.LevelingPolicy != LevelingNoop {
		prune := prunePass{}
		leveled, err = prune.Do(leveled)
		if err != nil {
			return nil, err
		}
		if err := leveled.Validate(); err != nil {
			return nil, structural(prune.Name(), err)
		}
		if err := checkLevels(prune.Name(), leveled); err != nil {
			return nil, err
		}
		record(prune.Name(), dag.NewArchive(leveled), len(leveled.TopologicalOrder()))
		cp.LeveledDags = append(cp.LeveledDags, leveled)
	}

	// Ciphertext-operator expansion.
	var program *ctop.Program
	if c.Config.CtOpPass == CtOpDummy {
		program, err = dummyCtOpPass{ctx: c.Context}.Do(leveled)
		if err != nil {
			return nil, err
		}
		record("dummy_ct_op_pass", dag.NewArchive(program.Dag()), len(program.Dag().TopologicalOrder()))
	} else {
		program, err = basicCtOpPass{ctx: c.Context}.Do(leveled)
		if err != nil {
			return nil, err
		}
		if err := program.Dag().Validate(); err != nil {
			return nil, structural("basic_ct_op_pass", err)
		}
		record("basic_ct_op_pass", dag.NewArchive(program.Dag()), len(program.Dag().TopologicalOrder()))

		levelMin := levelMinimizationPass{}
		program, err = levelMin.Do(program)
		if err != nil {
			return nil, err
		}
		if err := program.Dag().Validate(); err != nil {
			return nil, structural(levelMin.Name(), err)
		}
		record(levelMin.Name(), dag.NewArchive(program.Dag()), len(program.Dag().TopologicalOrder()))
	}
	cp.Program = program
	cp.Report = newReport(cp)
	return cp, nil
}

// PassID identifies one executed pass: its position in the pipeline and
// its name.
type PassID struct {
	Index int
	Name  string
}

func (id PassID) String() string {
	return fmt.Sprintf("%03d_%s", id.Index, id.Name)
}

// PassRecord is the provenance record of one executed pass.
type PassRecord struct {
	ID        PassID
	Archive   dag.Archive
	NodeCount int
}

// CompiledProgram is the result of a compilation: the emitted ct program,
// every retained intermediate IR and the archive chain for cross-pass
// debugging.
type CompiledProgram struct {
	Context     fhe.Context
	EmbryoDag   *dag.Dag[top.Embryo]
	LayoutDags  []*dag.Dag[top.TOp]
	ScaledDag   *dag.Dag[top.Scaled]
	LeveledDags []*dag.Dag[top.Leveled]
	Program     *ctop.Program
	Report      Report

	records []PassRecord
}

// Passes returns the records of every executed pass, in pipeline order.
func (cp *CompiledProgram) Passes() []PassRecord {
	return cp.records
}

// ArchiveBetween composes the archive chain from the pass at laterIndex
// down to (exclusive) the pass at earlierIndex, mapping later node ids to
// earlier node ids.
func (cp *CompiledProgram) ArchiveBetween(laterIndex, earlierIndex int) (dag.Archive, error) {
	if earlierIndex < 0 || laterIndex >= len(cp.records) || earlierIndex >= laterIndex {
		return nil, fmt.Errorf("compiler: invalid pass range [%d, %d]", earlierIndex, laterIndex)
	}
	archive := cp.records[laterIndex].Archive
	for k := laterIndex - 1; k > earlierIndex; k-- {
		archive = archive.Compose(cp.records[k].Archive)
	}
	return archive, nil
}
