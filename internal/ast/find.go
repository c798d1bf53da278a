package ast

import "math/rand"

// candidateGeometricP is the parameter of the geometric distribution used
// to bias target selection toward higher-generation (more recently
// introduced) nodes: candidates are sorted by descending generation and
// walked from the front, stopping at each with probability p.
const candidateGeometricP = 0.1

// Ref pairs a node's self-pointer with the function it was found in
// (nil for a top-level global declaration). Transformations that need to
// splice a new statement into the enclosing function's body, rather than
// just rewrite the node itself, need Fn; everything else only needs Self.
type Ref struct {
	Fn   *Function
	Self *Expr
}

// collector gathers Refs that satisfy a predicate, telling the predicate
// whether each node lies beneath an Unreachable wrapper.
type collector struct {
	unreachableTracker
	keep      func(fn *Function, self *Expr, inUnreachable bool) bool
	collected []Ref
}

func (c *collector) Visit(fn *Function, self *Expr) {
	if c.keep(fn, self, c.InUnreachable()) {
		c.collected = append(c.collected, Ref{Fn: fn, Self: self})
	}
}

// FindExprs returns every node within p (globals and all function
// bodies) for which keep reports true. inUnreachable tells keep whether
// the node lies beneath an Unreachable wrapper.
func FindExprs(p *Program, keep func(fn *Function, self *Expr, inUnreachable bool) bool) []Ref {
	c := &collector{keep: keep}
	p.Accept(c)
	return c.collected
}

// FindExpr performs FindExprs and then picks one candidate biased toward
// higher generation via a geometric draw: candidates are sorted by
// descending node generation, and the walk from the front stops at the
// first one accepted with probability candidateGeometricP, falling back
// to the last (lowest-generation) candidate if none is accepted early.
// It reports ok=false if there were no candidates at all.
func FindExpr(p *Program, rnd *rand.Rand, keep func(fn *Function, self *Expr, inUnreachable bool) bool) (target Ref, ok bool) {
	candidates := FindExprs(p, keep)
	if len(candidates) == 0 {
		return Ref{}, false
	}

	sortByDescendingGeneration(candidates)

	for i, c := range candidates {
		if i == len(candidates)-1 || rnd.Float64() < candidateGeometricP {
			return c, true
		}
	}
	return candidates[len(candidates)-1], true
}

func sortByDescendingGeneration(candidates []Ref) {
	// Insertion sort: candidate lists are small (bounded by program size),
	// and stability w.r.t. traversal order within equal generations
	// matters for reproducibility under a fixed seed.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && (*candidates[j].Self).Generation() > (*candidates[j-1].Self).Generation(); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// FindStmts is FindExprs restricted to nodes that occur in statement
// position (Block's Statements, If's branches, etc.) — in this model that
// distinction is purely a matter of which predicate the caller supplies,
// since statements and expressions share the same Expr interface.
func FindStmts(p *Program, keep func(fn *Function, self *Expr, inUnreachable bool) bool) []Ref {
	return FindExprs(p, keep)
}

// FindStmt is FindExpr's statement-position counterpart.
func FindStmt(p *Program, rnd *rand.Rand, keep func(fn *Function, self *Expr, inUnreachable bool) bool) (Ref, bool) {
	return FindExpr(p, rnd, keep)
}
