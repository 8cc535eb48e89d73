package ctop

import (
	"fmt"
	"strings"

	"github.com/tuneinsight/tensorc/dag"
	"github.com/tuneinsight/tensorc/fhe"
	"github.com/tuneinsight/tensorc/serial"
	"github.com/tuneinsight/tensorc/utils"
)

// Program is the ciphertext program the compiler emits: the scheme context,
// the ciphertext-operator graph and the dictionary of plaintext-chunk
// handles the graph references.
type Program struct {
	ctx     fhe.Context
	graph   *dag.Dag[CtOp]
	chunks  map[string]ChunkIr
	byValue map[string]string
}

// NewProgram returns an empty program over the given context.
func NewProgram(ctx fhe.Context) *Program {
	return &Program{
		ctx:     ctx,
		graph:   dag.New[CtOp](),
		chunks:  map[string]ChunkIr{},
		byValue: map[string]string{},
	}
}

// Context returns the scheme context.
func (p *Program) Context() fhe.Context {
	return p.ctx
}

// Dag returns the ciphertext-operator graph.
func (p *Program) Dag() *dag.Dag[CtOp] {
	return p.graph
}

// AddInput attaches a source operator.
func (p *Program) AddInput(op CtOp) *dag.Node[CtOp] {
	return p.graph.AddInput(op)
}

// AddNode attaches an operator with the given parents.
func (p *Program) AddNode(op CtOp, parents ...*dag.Node[CtOp]) *dag.Node[CtOp] {
	return p.graph.AddNode(op, parents)
}

// AddChunk stores a plaintext chunk and returns its handle. Identical
// chunks share one handle.
func (p *Program) AddChunk(c ChunkIr) string {
	var sb strings.Builder
	w := serial.NewWriter(&sb)
	WriteChunkIr(w, c)
	key := sb.String()
	if handle, ok := p.byValue[key]; ok {
		return handle
	}
	next := len(p.chunks)
	handle := fmt.Sprintf("ch_%d", next)
	for _, taken := p.chunks[handle]; taken; _, taken = p.chunks[handle] {
		next++
		handle = fmt.Sprintf("ch_%d", next)
	}
	p.chunks[handle] = c
	p.byValue[key] = handle
	return handle
}

// Chunk returns the chunk stored under handle.
func (p *Program) Chunk(handle string) (ChunkIr, bool) {
	c, ok := p.chunks[handle]
	return c, ok
}

// Handles returns every stored handle in sorted order.
func (p *Program) Handles() []string {
	return utils.GetSortedKeys(p.chunks)
}

// CloneFromAncestor returns a copy of the program whose graph nodes carry
// the originals' ids as ancestors. The chunk dictionary is shared content.
func (p *Program) CloneFromAncestor() *Program {
	out := NewProgram(p.ctx)
	out.graph = dag.CloneFromAncestor(p.graph)
	for handle, c := range p.chunks {
		out.chunks[handle] = c
	}
	for key, handle := range p.byValue {
		out.byValue[key] = handle
	}
	return out
}

// Write serialises the program: the context, the chunk dictionary and the
// operator graph.
func (p *Program) Write(w *serial.Writer) {
	p.ctx.Write(w)
	w.EndLine()
	handles := p.Handles()
	w.WriteInt(len(handles))
	w.EndLine()
	for _, handle := range handles {
		w.WriteToken(handle)
		WriteChunkIr(w, p.chunks[handle])
		w.EndLine()
	}
	dag.Write(w, p.graph, Write)
}

// ReadProgram parses a program written by Write.
func ReadProgram(s *serial.Scanner) (*Program, error) {
	ctx, err := fhe.ReadContext(s)
	if err != nil {
		return nil, err
	}
	p := NewProgram(ctx)
	n := s.Int()
	if s.Err() != nil {
		return nil, s.Err()
	}
	for i := 0; i < n; i++ {
		handle := s.Token()
		c, err := ReadChunkIr(s)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		cw := serial.NewWriter(&sb)
		WriteChunkIr(cw, c)
		p.chunks[handle] = c
		p.byValue[sb.String()] = handle
	}
	p.graph, err = dag.Read(s, Read)
	if err != nil {
		return nil, err
	}
	return p, nil
}
