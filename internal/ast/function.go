package ast

import "fmt"

// IdentAllocator hands out fresh, never-reused identifiers. A Program
// carries exactly one, shared by every local variable, global, and
// helper function any transformation introduces, so the whole program
// draws from a single id0, id1, id2, … stream regardless of which kind
// of binding each name ends up naming. Names are stable once allocated:
// the mutation engine refers to a variable by the Variable node it
// created, never by re-deriving a name.
type IdentAllocator struct {
	prefix string
	next   int
}

func NewIdentAllocator(prefix string) *IdentAllocator {
	return &IdentAllocator{prefix: prefix}
}

func (a *IdentAllocator) Next() string {
	name := fmt.Sprintf("%s%d", a.prefix, a.next)
	a.next++
	return name
}

// Param is a single function parameter.
type Param struct {
	Typ  *Type
	Name string
}

// Function is one function definition within a Program: a typed
// signature plus a body block. The body is itself a mutable Expr slot so
// that Program's clone-on-write rewrite can splice in a replacement
// exactly the way it does for any other node.
type Function struct {
	Name       string
	ReturnType *Type
	Params     []Param
	Body       Expr
}

func NewFunction(name string, returnType *Type, params []Param, body Expr) *Function {
	return &Function{
		Name:       name,
		ReturnType: returnType,
		Params:     params,
		Body:       body,
	}
}

// Clone deep-copies the function body, stamping every node with
// generation. The signature itself is never rewritten by a
// transformation, so it is shared as-is.
func (f *Function) Clone(generation uint32) *Function {
	return &Function{
		Name:       f.Name,
		ReturnType: f.ReturnType,
		Params:     f.Params,
		Body:       f.Body.Clone(generation),
	}
}

// Accept walks the function body, reporting each node to v.
func (f *Function) Accept(v Visitor) {
	f.Body.Accept(f, &f.Body, v)
}
