package ast

// Program is a full compilation unit: zero or more global declarations,
// zero or more helper functions, and a single top-level function under
// mutation whose return value must always equal TargetValue. Rendering
// wraps that function with a synthesized main so the sandbox can compile,
// link, and run the result without the mutation catalogue ever having to
// know how the value gets reported. Generation counts up once per
// accepted mutation and is stamped onto every node a transformation
// introduces, so find.go's generation-biased selection can always tell
// "recently introduced" from "present since the seed".
type Program struct {
	Globals     []Expr
	Functions   []*Function
	ToplevelFn  *Function
	TargetValue int32
	Generation  uint32

	// Ids is the single source of fresh names for every local, global,
	// and helper function any transformation introduces: one id0, id1,
	// id2, … stream shared across the whole program. The top-level
	// function's own name is fixed at construction and never drawn from
	// this stream, so the first transformation to ever call Ids.Next()
	// gets id0.
	Ids *IdentAllocator
}

// toplevelFnName is the fixed name of the function under mutation. It is
// never reused for anything Ids allocates, so it can never collide with
// a fresh id.
const toplevelFnName = "toplevel_fn"

// NewProgram returns a program whose top-level function unconditionally
// returns targetValue.
func NewProgram(targetValue int32) *Program {
	toplevel := NewFunction(toplevelFnName, IntType, nil,
		NewBlock(0, NewReturn(0, NewIntLiteral(0, targetValue))))
	return &Program{
		ToplevelFn:  toplevel,
		TargetValue: targetValue,
		Ids:         NewIdentAllocator("id"),
	}
}

// Main returns the function under mutation.
func (p *Program) Main() *Function {
	return p.ToplevelFn
}

// Clone deep-copies the entire program, bumping Generation by one and
// stamping every cloned node with the new generation. Transformations
// are applied to the clone, never to the receiver, giving the scheduler
// a cheap way to back out of a transformation that turned out to fail
// (simply discard the clone and keep the original).
func (p *Program) Clone() *Program {
	generation := p.Generation + 1

	globals := make([]Expr, len(p.Globals))
	for i, g := range p.Globals {
		globals[i] = g.Clone(generation)
	}

	functions := make([]*Function, len(p.Functions))
	for i, f := range p.Functions {
		functions[i] = f.Clone(generation)
	}

	return &Program{
		Globals:     globals,
		Functions:   functions,
		ToplevelFn:  p.ToplevelFn.Clone(generation),
		TargetValue: p.TargetValue,
		Generation:  generation,
		Ids:         p.Ids,
	}
}

// Accept walks every global declaration, every helper function, and
// finally the top-level function.
func (p *Program) Accept(v Visitor) {
	for i := range p.Globals {
		p.Globals[i].Accept(nil, &p.Globals[i], v)
	}
	for _, f := range p.Functions {
		f.Accept(v)
	}
	p.ToplevelFn.Accept(v)
}
