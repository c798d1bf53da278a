package grammar

import "math/rand"

// Production is one entry of the mutation table: a predicate over the leaf
// being considered, and a rewrite that expands it by one grammar
// production. The table itself is generated from a production file by an
// external tool (out of scope, spec.md §1); the engine only ever sees it
// as a slice of these closures, supplied by the caller.
type Production struct {
	// Applicable reports whether this production can expand leaf.
	Applicable func(a *Arena, leaf ID) bool
	// Expand returns the replacement subtree for leaf.
	Expand func(a *Arena, rnd *rand.Rand, leaf ID) ID
}

// Table is the closed, enumerated set of grammar productions consulted by
// Mutate. It is a black-box dispatch table from the engine's standpoint;
// callers substitute whatever table a compiled grammar produces.
type Table []Production

// Mutate consults table[mutation] against leaf within root. If the
// production is applicable it returns a new root with leaf expanded;
// otherwise it returns root unchanged. The caller must treat an unchanged
// return as a legitimate no-op cycle, never as an error to retry.
func Mutate(a *Arena, rnd *rand.Rand, root, leaf ID, table Table, mutation int) ID {
	p := table[mutation]
	if !p.Applicable(a, leaf) {
		return root
	}

	replacement := p.Expand(a, rnd, leaf)
	return a.Replace(root, leaf, replacement)
}
