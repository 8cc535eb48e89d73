// Package top defines the tensor operators of the compiler: the pre-layout
// Embryo family, the laid-out TOp family with its expansion to ciphertext
// operators, and the Scaled/Leveled wrappers produced by the rescaling and
// leveling passes.
package top

import (
	"strings"

	"github.com/tuneinsight/tensorc/ctop"
	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/tensor"
	"github.com/zeebo/blake3"
)

// Chunk is one ciphertext chunk inside the ct program under construction.
type Chunk = *dag.Node[ctop.CtOp]

// LaidOutCt is a tensor laid out over ciphertext chunks.
type LaidOutCt = tensor.LaidOutTensor[Chunk]

// TOp is a tensor operator with explicit input and output layouts.
type TOp interface {
	TypeName() string
	OutputLayout() tensor.Layout
	// SetLayouts rewires the operator's layouts; used by the hoisting and
	// input-layout optimisers.
	SetLayouts(in, out tensor.Layout)
	// AddedLogScale is how much one application adds to the operand's log
	// scale.
	AddedLogScale() fhe.LogScale
	// BackendMaskDepth is 1 for operators whose realisation multiplies by a
	// backend-generated chunk mask, 0 otherwise.
	BackendMaskDepth() int
	CopyNew() TOp
	// Expand realises the operator on its laid-out input chunks, amending
	// the ct program.
	Expand(p *ctop.Program, inputs []LaidOutCt) (LaidOutCt, error)
	writeArgs(w *serial.Writer)
}

// Sprint returns the serialised text of an operator.
func Sprint(op TOp) string {
	var sb strings.Builder
	w := serial.NewWriter(&sb)
	WriteTOp(w, op)
	return sb.String()
}

// Equal reports structural equality of two operators, layouts included.
func Equal(a, b TOp) bool {
	return Sprint(a) == Sprint(b)
}

// Digest returns a collision-resistant digest of the operator's full
// serialised form; the value-numbering pass keys its candidate table on it.
func Digest(op TOp) [32]byte {
	return blake3.Sum256([]byte(Sprint(op)))
}
