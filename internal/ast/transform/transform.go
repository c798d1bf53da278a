// Package transform implements the closed catalogue of value-preserving
// program transformations the typed-AST scheduler draws from: each
// transformation rewrites one randomly chosen subtree of a program clone
// into a semantically equivalent (but syntactically different, and often
// compiler-unfriendlier) form. Every transformation is a no-op-safe
// program -> (program, bool) function: if it finds nothing to act on it
// reports ok=false and the caller discards the clone.
package transform

import (
	"math/rand"

	"github.com/vegard/prog-fuzz/internal/ast"
)

// Func is the shape every catalogue entry has. rnd supplies all the
// randomness the transformation needs, so that a whole mutation run can
// be replayed deterministically from a single seed.
type Func func(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool)

// All is the catalogue in canonical order. The typed scheduler draws a
// uniformly random index into it for every transformation it applies.
var All = []Func{
	ToStatementExpression,
	ToSum,
	ToProduct,
	ToNegation,
	ToConjunction,
	ToDisjunction,
	ToXor,
	OneToEquals,
	OneToNotEquals,
	ToVariable,
	ToGlobalVariable,
	ToFunction,
	ToBuiltinConstantP,
	InsertBuiltinExpect,
	InsertBuiltinPrefetch,
	InsertIf,
	InsertAsm,
	InsertBuiltinUnreachable,
	InsertBuiltinTrap,
	InsertDivBy0,
	ToVariableAndAsm,
}

func isIntLiteral(fn *ast.Function, self *ast.Expr, inUnreachable bool) bool {
	_, ok := (*self).(*ast.IntLiteral)
	return ok
}

func isIntLiteralWithValue(value int32) func(fn *ast.Function, self *ast.Expr, inUnreachable bool) bool {
	return func(fn *ast.Function, self *ast.Expr, inUnreachable bool) bool {
		lit, ok := (*self).(*ast.IntLiteral)
		return ok && lit.Value == value
	}
}

func isUnreachableBlock(fn *ast.Function, self *ast.Expr, inUnreachable bool) bool {
	_, ok := (*self).(*ast.Block)
	return ok && inUnreachable
}

func isBlock(fn *ast.Function, self *ast.Expr, inUnreachable bool) bool {
	_, ok := (*self).(*ast.Block)
	return ok
}

// findIntLiteral clones p and returns the clone, its generation, and a
// randomly chosen integer literal target within it, biased toward
// higher-generation nodes the way every "pick an int literal" entry in
// the catalogue does.
func findIntLiteral(rnd *rand.Rand, p *ast.Program) (*ast.Program, uint32, ast.Ref, bool) {
	clone := p.Clone()
	ref, ok := ast.FindExpr(clone, rnd, isIntLiteral)
	return clone, clone.Generation, ref, ok
}

func insertAtRandomIndex(rnd *rand.Rand, statements []ast.Expr, stmt ast.Expr) []ast.Expr {
	return insertAt(statements, rnd.Intn(len(statements)+1), stmt)
}

func uniformInt32(rnd *rand.Rand, lo, hi int64) int32 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return int32(lo + rnd.Int63n(hi-lo+1))
}

// ToStatementExpression rewrites an int literal N into a GNU statement
// expression evaluating to N: ({ N; }).
func ToStatementExpression(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	intLit := *ref.Self
	*ref.Self = ast.NewStatementExpression(generation,
		ast.NewBlock(generation),
		ast.NewExprStatement(generation, intLit))
	return clone, true
}

// ToSum rewrites an int literal N into a+b where a+b == N, choosing a
// and b so that neither the split nor the later addition can overflow.
func ToSum(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value

	var lo, hi int64 = int64(minInt32), int64(maxInt32)
	if value < 0 {
		hi = int64(value) - int64(minInt32)
	} else {
		lo = int64(value) - int64(maxInt32)
	}
	a := uniformInt32(rnd, lo, hi)
	b := value - a

	*ref.Self = ast.NewBinOp(generation, "+",
		ast.NewIntLiteral(generation, a),
		ast.NewIntLiteral(generation, b))
	return clone, true
}

const (
	minInt32 = -1 << 31
	maxInt32 = 1<<31 - 1
)

func gcd(a, b int) int {
	for a != b {
		if a > b {
			a -= b
		} else {
			b -= a
		}
	}
	return a
}

// ToProduct rewrites an int literal N into a*b where a*b == N, using a
// gcd split of |N| against a random value in [1, |N|-1] so the factors
// stay exact. Literals with |N| <= 1 are left alone (ok=false).
func ToProduct(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value

	a := int(value)
	if a < 0 {
		a = -a
	}
	if a <= 1 {
		return nil, false
	}
	b := 1 + rnd.Intn(a-1)

	factorA := gcd(a, b)
	factorB := int(value) / factorA

	*ref.Self = ast.NewBinOp(generation, "*",
		ast.NewIntLiteral(generation, int32(factorA)),
		ast.NewIntLiteral(generation, int32(factorB)))
	return clone, true
}

// ToNegation rewrites an int literal N into ~(~N).
func ToNegation(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value

	*ref.Self = ast.NewPrefixOp(generation, "~",
		ast.NewIntLiteral(generation, ^value))
	return clone, true
}

// ToConjunction rewrites an int literal N into a&b where a&b == N,
// using a random mask r split across a = N|r, b = N|~r.
func ToConjunction(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value
	r := uniformInt32(rnd, int64(minInt32), int64(maxInt32))

	a := value | r
	b := value | ^r

	*ref.Self = ast.NewBinOp(generation, "&",
		ast.NewIntLiteral(generation, a),
		ast.NewIntLiteral(generation, b))
	return clone, true
}

// ToDisjunction rewrites an int literal N into a|b where a|b == N,
// using a random mask r split across a = N&r, b = N&~r.
func ToDisjunction(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value
	r := uniformInt32(rnd, int64(minInt32), int64(maxInt32))

	a := value & r
	b := value & ^r

	*ref.Self = ast.NewBinOp(generation, "|",
		ast.NewIntLiteral(generation, a),
		ast.NewIntLiteral(generation, b))
	return clone, true
}

// ToXor rewrites an int literal N into a^b where a^b == N.
func ToXor(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value
	r := uniformInt32(rnd, int64(minInt32), int64(maxInt32))

	a := ^r
	b := r ^ ^value

	*ref.Self = ast.NewBinOp(generation, "^",
		ast.NewIntLiteral(generation, a),
		ast.NewIntLiteral(generation, b))
	return clone, true
}

// OneToEquals rewrites an int literal 1 into r==r for a random r.
func OneToEquals(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindExpr(clone, rnd, isIntLiteralWithValue(1))
	if !ok {
		return nil, false
	}
	r := uniformInt32(rnd, int64(minInt32), int64(maxInt32))

	*ref.Self = ast.NewBinOp(generation, "==",
		ast.NewIntLiteral(generation, r),
		ast.NewIntLiteral(generation, r))
	return clone, true
}

// OneToNotEquals rewrites an int literal 1 into r1!=r2 for two distinct
// random values.
func OneToNotEquals(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindExpr(clone, rnd, isIntLiteralWithValue(1))
	if !ok {
		return nil, false
	}
	r1 := uniformInt32(rnd, int64(minInt32), int64(maxInt32))
	var r2 int32
	for {
		r2 = uniformInt32(rnd, int64(minInt32), int64(maxInt32))
		if r2 != r1 {
			break
		}
	}

	*ref.Self = ast.NewBinOp(generation, "!=",
		ast.NewIntLiteral(generation, r1),
		ast.NewIntLiteral(generation, r2))
	return clone, true
}

// ToVariable rewrites an int literal N into a freshly declared local
// variable initialized to N, with the declaration hoisted to the front
// of the enclosing function's body.
func ToVariable(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindExpr(clone, rnd, isIntLiteral)
	if !ok {
		return nil, false
	}
	if ref.Fn == nil {
		return nil, false
	}
	intLit := *ref.Self

	newVar := ast.NewVariable(generation, clone.Ids.Next())
	decl := ast.NewDeclaration(generation, ast.IntType, newVar, intLit)

	body := ref.Fn.Body.(*ast.Block)
	body.Statements = prepend(body.Statements, decl)
	*ref.Self = newVar
	return clone, true
}

// ToGlobalVariable rewrites an int literal N into a freshly declared
// global variable initialized to N, hoisted to the front of the program's
// top-level declarations.
func ToGlobalVariable(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindExpr(clone, rnd, isIntLiteral)
	if !ok {
		return nil, false
	}
	intLit := *ref.Self

	newVar := ast.NewVariable(generation, clone.Ids.Next())
	decl := ast.NewDeclaration(generation, ast.IntType, newVar, intLit)

	clone.Globals = prepend(clone.Globals, decl)
	*ref.Self = newVar
	return clone, true
}

// ToFunction rewrites an int literal N into a call to a freshly
// synthesized, parameterless function that returns N.
func ToFunction(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	intLit := *ref.Self

	name := clone.Ids.Next()
	body := ast.NewBlock(generation, ast.NewReturn(generation, intLit))
	newFn := ast.NewFunction(name, ast.IntType, nil, body)
	clone.Functions = append(clone.Functions, newFn)

	*ref.Self = ast.NewCall(generation, ast.NewVariable(generation, name))
	return clone, true
}

// ToBuiltinConstantP rewrites an int literal N into
// __builtin_constant_p(N) ? N : N — a value-preserving tautology that
// forces the compiler to resolve the builtin and the constant-folded
// ternary identically.
func ToBuiltinConstantP(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value

	call := ast.NewCall(generation, ast.NewVariable(generation, "__builtin_constant_p"),
		ast.NewIntLiteral(generation, value))
	*ref.Self = ast.NewTernOp(generation, "?", ":", call,
		ast.NewIntLiteral(generation, value),
		ast.NewIntLiteral(generation, value))
	return clone, true
}

// InsertBuiltinExpect rewrites an int literal N into
// __builtin_expect(N, hint), where hint is N itself one time in four and
// an unrelated random value otherwise (matching the real call's
// "predicted but not guaranteed" contract).
func InsertBuiltinExpect(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone, generation, ref, ok := findIntLiteral(rnd, p)
	if !ok {
		return nil, false
	}
	value := (*ref.Self).(*ast.IntLiteral).Value

	hint := value
	if rnd.Intn(4) != 0 {
		hint = uniformInt32(rnd, int64(minInt32), int64(maxInt32))
	}

	*ref.Self = ast.NewCall(generation, ast.NewVariable(generation, "__builtin_expect"),
		ast.NewIntLiteral(generation, value),
		ast.NewIntLiteral(generation, hint))
	return clone, true
}

// InsertBuiltinPrefetch inserts a __builtin_prefetch call on a random
// address at a random position within a randomly chosen block. The call
// touches no program state, so it preserves value by construction.
func InsertBuiltinPrefetch(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindStmt(clone, rnd, isBlock)
	if !ok {
		return nil, false
	}
	block := (*ref.Self).(*ast.Block)

	addr := uniformInt32(rnd, int64(minInt32), int64(maxInt32))
	call := ast.NewCall(generation, ast.NewVariable(generation, "__builtin_prefetch"),
		ast.NewCast(generation, ast.VoidPType, ast.NewIntLiteral(generation, addr)))
	stmt := ast.NewExprStatement(generation, call)

	block.Statements = insertAtRandomIndex(rnd, block.Statements, stmt)
	return clone, true
}

// InsertIf inserts an if statement with a constant-folded condition at a
// random position within a randomly chosen block. The branch that cannot
// run is wrapped in Unreachable, so both branches are present in the
// compiled output but exactly one is exercised.
func InsertIf(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindStmt(clone, rnd, isBlock)
	if !ok {
		return nil, false
	}
	block := (*ref.Self).(*ast.Block)

	cond := int32(rnd.Intn(2))
	var trueStmt, falseStmt ast.Expr = ast.NewBlock(generation), ast.NewBlock(generation)
	if cond != 0 {
		falseStmt = ast.NewUnreachable(generation, falseStmt)
	} else {
		trueStmt = ast.NewUnreachable(generation, trueStmt)
	}
	stmt := ast.NewIf(generation, ast.NewIntLiteral(generation, cond), trueStmt, falseStmt)

	block.Statements = insertAtRandomIndex(rnd, block.Statements, stmt)
	return clone, true
}

// InsertAsm inserts an empty, possibly-volatile asm statement at a random
// position within a randomly chosen block. An asm block with no operands
// touches no program state.
func InsertAsm(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindStmt(clone, rnd, isBlock)
	if !ok {
		return nil, false
	}
	block := (*ref.Self).(*ast.Block)

	stmt := ast.NewAsmStatement(generation, rnd.Intn(2) == 1, nil, nil)
	block.Statements = insertAtRandomIndex(rnd, block.Statements, stmt)
	return clone, true
}

// InsertBuiltinUnreachable inserts a __builtin_unreachable() call into a
// block that is itself under an Unreachable wrapper: the call asserts
// exactly the unreachability the surrounding control flow already
// guarantees.
func InsertBuiltinUnreachable(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindStmt(clone, rnd, isUnreachableBlock)
	if !ok {
		return nil, false
	}
	block := (*ref.Self).(*ast.Block)

	call := ast.NewCall(generation, ast.NewVariable(generation, "__builtin_unreachable"))
	stmt := ast.NewExprStatement(generation, call)
	block.Statements = insertAtRandomIndex(rnd, block.Statements, stmt)
	return clone, true
}

// InsertBuiltinTrap inserts a __builtin_trap() call into a block under an
// Unreachable wrapper.
func InsertBuiltinTrap(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindStmt(clone, rnd, isUnreachableBlock)
	if !ok {
		return nil, false
	}
	block := (*ref.Self).(*ast.Block)

	call := ast.NewCall(generation, ast.NewVariable(generation, "__builtin_trap"))
	stmt := ast.NewExprStatement(generation, call)
	block.Statements = insertAtRandomIndex(rnd, block.Statements, stmt)
	return clone, true
}

// InsertDivBy0 inserts a 1/0 expression statement into a block under an
// Unreachable wrapper, where its undefined behavior can never actually
// execute.
func InsertDivBy0(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindStmt(clone, rnd, isUnreachableBlock)
	if !ok {
		return nil, false
	}
	block := (*ref.Self).(*ast.Block)

	div := ast.NewBinOp(generation, "/", ast.NewIntLiteral(generation, 1), ast.NewIntLiteral(generation, 0))
	stmt := ast.NewExprStatement(generation, div)
	block.Statements = insertAtRandomIndex(rnd, block.Statements, stmt)
	return clone, true
}

// ToVariableAndAsm performs ToVariable and then pins the new variable
// into a "+r" (read-write) asm constraint immediately after its
// declaration, forcing the compiler to materialize it in a register
// rather than constant-propagating it away.
func ToVariableAndAsm(rnd *rand.Rand, p *ast.Program) (*ast.Program, bool) {
	clone := p.Clone()
	generation := clone.Generation
	ref, ok := ast.FindExpr(clone, rnd, isIntLiteral)
	if !ok || ref.Fn == nil {
		return nil, false
	}
	intLit := *ref.Self

	name := clone.Ids.Next()
	newVar := ast.NewVariable(generation, name)
	decl := ast.NewDeclaration(generation, ast.IntType, newVar, intLit)

	constraint := ast.NewAsmConstraint(generation, "+r", ast.NewVariable(generation, name))
	asmStmt := ast.NewAsmStatement(generation, rnd.Intn(2) == 1, []ast.Expr{constraint}, nil)

	body := ref.Fn.Body.(*ast.Block)
	body.Statements = prepend(body.Statements, decl)
	body.Statements = insertAt(body.Statements, 1, asmStmt)

	*ref.Self = newVar
	return clone, true
}

func prepend(statements []ast.Expr, stmt ast.Expr) []ast.Expr {
	return insertAt(statements, 0, stmt)
}

func insertAt(statements []ast.Expr, i int, stmt ast.Expr) []ast.Expr {
	out := make([]ast.Expr, 0, len(statements)+1)
	out = append(out, statements[:i]...)
	out = append(out, stmt)
	out = append(out, statements[i:]...)
	return out
}

