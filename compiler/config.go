package compiler

import (
	"fmt"

	"github.com/tuneinsight/tensorc/utils"
	"gopkg.in/yaml.v3"
)

// Pass selection values for Config.
const (
	LayoutFillGaps = "fill_gaps"
	LayoutChet     = "chet"

	LevelingDP       = "dp"
	LevelingLazy     = "lazy"
	LevelingNoop     = "noop"
	LevelingChetLazy = "chet_lazy"

	CtOpBasic = "basic"
	CtOpDummy = "dummy"
)

// Config selects the pipeline's passes and their knobs.
type Config struct {
	// LayoutPolicy is "fill_gaps" or "chet".
	LayoutPolicy string `yaml:"layout_policy"`
	// RowMajorHack turns chet repacks into layout conversions so they can
	// be decomposed.
	RowMajorHack bool `yaml:"row_major_hack"`
	// LevelingPolicy is "dp", "lazy", "noop" or "chet_lazy".
	LevelingPolicy string `yaml:"leveling_policy"`
	// CtOpPass is "basic" (expand) or "dummy" (skip).
	CtOpPass string `yaml:"ct_op_pass"`
	// RepackShower inserts a chet repack after every embryo node.
	RepackShower bool `yaml:"repack_shower"`
	// MergeStrideChains merges adjacent strides before layout assignment.
	MergeStrideChains bool `yaml:"merge_stride_chains"`
	// MaxTentacles bounds the tentacle estimate of a single layout
	// conversion; larger conversions are decomposed. Must be a power of
	// two.
	MaxTentacles int `yaml:"max_tentacles"`
	// PruneBootstraps runs the bootstrap pruning optimiser.
	PruneBootstraps bool `yaml:"prune_bootstraps"`
}

// DefaultConfig mirrors the compiler's standard pipeline.
func DefaultConfig() Config {
	return Config{
		LayoutPolicy:      LayoutFillGaps,
		LevelingPolicy:    LevelingDP,
		CtOpPass:          CtOpBasic,
		MergeStrideChains: true,
		MaxTentacles:      16,
		PruneBootstraps:   true,
	}
}

// Validate checks the configuration's contracts.
func (c Config) Validate() error {
	switch c.LayoutPolicy {
	case LayoutFillGaps, LayoutChet:
	default:
		return fmt.Errorf("compiler: unknown layout policy %q", c.LayoutPolicy)
	}
	switch c.LevelingPolicy {
	case LevelingDP, LevelingLazy, LevelingNoop, LevelingChetLazy:
	default:
		return fmt.Errorf("compiler: unknown leveling policy %q", c.LevelingPolicy)
	}
	switch c.CtOpPass {
	case CtOpBasic, CtOpDummy:
	default:
		return fmt.Errorf("compiler: unknown ct-op pass %q", c.CtOpPass)
	}
	if !utils.IsPowerOfTwo(c.MaxTentacles) {
		return fmt.Errorf("compiler: max tentacles %d is not a power of two", c.MaxTentacles)
	}
	return nil
}

// ParseConfig loads a Config from YAML, applying defaults for absent keys.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("compiler: parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
