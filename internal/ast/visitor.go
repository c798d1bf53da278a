package ast

// Visitor observes (and may rewrite) every node of a subtree via Expr's
// Accept method. Visit is called once per node, before that node's
// children are visited, with self pointing at the slot that holds the
// node so that an implementation can splice in a replacement.
//
// EnterUnreachable/LeaveUnreachable bracket traversal beneath an
// Unreachable wrapper; a Visitor that cares whether it is currently under
// one (find.go's target finders do, and hand that fact to their
// predicate, which is how the dead-code transformations find unreachable
// blocks) tracks a depth counter across the two calls.
type Visitor interface {
	Visit(fn *Function, self *Expr)
	EnterUnreachable()
	LeaveUnreachable()
}

// VisitFunc adapts a plain per-node callback into a Visitor that ignores
// unreachability bracketing. Most read-only walks (counting, searching)
// only need Visit.
type VisitFunc func(fn *Function, self *Expr)

func (f VisitFunc) Visit(fn *Function, self *Expr) { f(fn, self) }
func (f VisitFunc) EnterUnreachable()               {}
func (f VisitFunc) LeaveUnreachable()               {}

// unreachableTracker is embedded by Visitors that need to know whether
// the node currently being visited lies beneath an Unreachable wrapper.
type unreachableTracker struct {
	depth int
}

func (t *unreachableTracker) EnterUnreachable() { t.depth++ }
func (t *unreachableTracker) LeaveUnreachable() { t.depth-- }
func (t *unreachableTracker) InUnreachable() bool { return t.depth > 0 }
