package top

import (
	"fmt"

	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
)

// Leveled pairs a tensor operator with the level info of its output and,
// when the leveling pass computed one, the node's rescale depth.
type Leveled struct {
	Op       TOp
	Info     fhe.LevelInfo
	Depth    int
	HasDepth bool
}

// CopyNew implements dag.Value.
func (l Leveled) CopyNew() Leveled {
	return Leveled{Op: l.Op.CopyNew(), Info: l.Info, Depth: l.Depth, HasDepth: l.HasDepth}
}

// Expand realises the operator on its laid-out inputs and verifies that
// every emitted chunk carries the declared level info.
func (l Leveled) Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error) {
	var out LaidOutCt
	var err error
	if in, ok := l.Op.(*TInputC); ok {
		out = in.CreateInputTensor(p, l.Info)
	} else {
		out, err = l.Op.Expand(p, inputs)
		if err != nil {
			return LaidOutCt{}, err
		}
	}
	for _, chunk := range out.Chunks() {
		if got := chunk.Chunk.Value().LevelInfo(); got != l.Info {
			return LaidOutCt{}, fmt.Errorf("top: %s chunk at offset %d has level info %v, declared %v",
				l.Op.TypeName(), chunk.Offset, got, l.Info)
		}
	}
	return out, nil
}

// WriteLeveled serialises a leveled operator.
func WriteLeveled(w *serial.Writer, l Leveled) {
	WriteTOp(w, l.Op)
	l.Info.Write(w)
	w.WriteOptionalInt(l.Depth, l.HasDepth)
}

// ReadLeveled parses a leveled operator written by WriteLeveled.
func ReadLeveled(s *serial.Scanner) (Leveled, error) {
	op, err := ReadTOp(s)
	if err != nil {
		return Leveled{}, err
	}
	info, err := fhe.ReadLevelInfo(s)
	if err != nil {
		return Leveled{}, err
	}
	depth, hasDepth := s.OptionalInt()
	return Leveled{Op: op, Info: info, Depth: depth, HasDepth: hasDepth}, s.Err()
}
