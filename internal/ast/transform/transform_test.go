package transform

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/vegard/prog-fuzz/internal/ast"
)

func programWithLiteral(value int32) *ast.Program {
	p := ast.NewProgram(value)
	p.Main().Body = ast.NewBlock(0, ast.NewReturn(0, ast.NewIntLiteral(0, value)))
	return p
}

func TestAllCatalogueEntriesAreNoOpSafeOnEmptyProgram(t *testing.T) {
	p := ast.NewProgram(0)
	p.Main().Body = ast.NewBlock(0)

	// The empty body is itself a block, so the entries that insert into
	// any block (InsertBuiltinPrefetch, InsertIf, InsertAsm) still have a
	// target; every other entry needs an int literal or an unreachable
	// block and has nothing to rewrite.
	blockTargets := map[int]bool{14: true, 15: true, 16: true}
	rnd := rand.New(rand.NewSource(1))
	for i, fn := range All {
		if _, ok := fn(rnd, p); ok != blockTargets[i] {
			t.Fatalf("All[%d] reported ok=%v on an empty body, want %v", i, ok, blockTargets[i])
		}
	}
}

func TestToSumPreservesValue(t *testing.T) {
	p := programWithLiteral(42)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToSum(rnd, p)
	if !ok {
		t.Fatalf("ToSum reported no candidate")
	}

	lit := p.Main().Body.(*ast.Block).Statements[0].(*ast.Return).Expr.(*ast.IntLiteral)
	if lit.Value != 42 {
		t.Fatalf("original program was mutated: %d", lit.Value)
	}

	bin := clone.Main().Body.(*ast.Block).Statements[0].(*ast.Return).Expr.(*ast.BinOp)
	a := bin.Lhs.(*ast.IntLiteral).Value
	b := bin.Rhs.(*ast.IntLiteral).Value
	if a+b != 42 {
		t.Fatalf("ToSum did not preserve value: %d + %d != 42", a, b)
	}
}

func TestToProductRejectsZeroAndOne(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	if _, ok := ToProduct(rnd, programWithLiteral(0)); ok {
		t.Fatalf("ToProduct accepted literal 0")
	}
	if _, ok := ToProduct(rnd, programWithLiteral(1)); ok {
		t.Fatalf("ToProduct accepted literal 1")
	}
}

func TestToProductPreservesValue(t *testing.T) {
	p := programWithLiteral(36)
	rnd := rand.New(rand.NewSource(2))

	clone, ok := ToProduct(rnd, p)
	if !ok {
		t.Fatalf("ToProduct reported no candidate")
	}
	bin := clone.Main().Body.(*ast.Block).Statements[0].(*ast.Return).Expr.(*ast.BinOp)
	a := bin.Lhs.(*ast.IntLiteral).Value
	b := bin.Rhs.(*ast.IntLiteral).Value
	if a*b != 36 {
		t.Fatalf("ToProduct did not preserve value: %d * %d != 36", a, b)
	}
}

func TestToNegationPreservesValue(t *testing.T) {
	p := programWithLiteral(7)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToNegation(rnd, p)
	if !ok {
		t.Fatalf("ToNegation reported no candidate")
	}
	pre := clone.Main().Body.(*ast.Block).Statements[0].(*ast.Return).Expr.(*ast.PrefixOp)
	if pre.Op != "~" {
		t.Fatalf("expected prefix ~, got %q", pre.Op)
	}
	if ^pre.Arg.(*ast.IntLiteral).Value != 7 {
		t.Fatalf("ToNegation did not preserve value")
	}
}

func TestToStatementExpressionRendersBalancedBraces(t *testing.T) {
	p := programWithLiteral(9)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToStatementExpression(rnd, p)
	if !ok {
		t.Fatalf("ToStatementExpression reported no candidate")
	}

	out := ast.Print(clone)
	if !strings.Contains(out, "({\n") {
		t.Fatalf("expected a GNU statement-expression opener, got: %q", out)
	}
	if !strings.Contains(out, "9;\n") {
		t.Fatalf("expected the trailing expression statement inside the braces, got: %q", out)
	}
	if strings.Count(out, "({") != strings.Count(out, "})") {
		t.Fatalf("statement-expression open/close markers are unbalanced: %q", out)
	}

	// The single shared brace pair must enclose both the (empty) block
	// and the trailing statement: no bare statement may sit between the
	// block's own close and the outer paren's close.
	idx := strings.Index(out, "({\n")
	closeIdx := strings.Index(out[idx:], "})")
	if closeIdx < 0 {
		t.Fatalf("no matching close for statement-expression: %q", out)
	}
	inner := out[idx+len("({\n") : idx+closeIdx]
	if strings.Count(inner, "{") != strings.Count(inner, "}") {
		t.Fatalf("unbalanced inner braces inside statement-expression: %q", inner)
	}
}

func TestOneToEqualsOnlyTargetsLiteralOne(t *testing.T) {
	p := programWithLiteral(2)
	rnd := rand.New(rand.NewSource(1))

	if _, ok := OneToEquals(rnd, p); ok {
		t.Fatalf("OneToEquals matched a non-1 literal")
	}

	p = programWithLiteral(1)
	clone, ok := OneToEquals(rnd, p)
	if !ok {
		t.Fatalf("OneToEquals found no literal 1")
	}
	bin := clone.Main().Body.(*ast.Block).Statements[0].(*ast.Return).Expr.(*ast.BinOp)
	if bin.Op != "==" {
		t.Fatalf("expected ==, got %q", bin.Op)
	}
}

func TestToVariableHoistsDeclaration(t *testing.T) {
	p := programWithLiteral(9)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToVariable(rnd, p)
	if !ok {
		t.Fatalf("ToVariable reported no candidate")
	}
	body := clone.Main().Body.(*ast.Block)
	decl, ok := body.Statements[0].(*ast.Declaration)
	if !ok {
		t.Fatalf("expected declaration at front of body, got %T", body.Statements[0])
	}
	if decl.Value.(*ast.IntLiteral).Value != 9 {
		t.Fatalf("hoisted declaration lost the original value")
	}
	ret := body.Statements[len(body.Statements)-1].(*ast.Return)
	if ret.Expr.(*ast.Variable).Name != decl.Var.(*ast.Variable).Name {
		t.Fatalf("return does not reference the hoisted variable")
	}
	// The very first name ever drawn from a freshly seeded program's
	// shared allocator must be id0, not a number already advanced by the
	// top-level function's own (separately named) bootstrap.
	if decl.Var.(*ast.Variable).Name != "id0" {
		t.Fatalf("hoisted variable name = %q, want id0", decl.Var.(*ast.Variable).Name)
	}
}

func TestToGlobalVariableHoistsToProgramGlobals(t *testing.T) {
	p := programWithLiteral(3)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToGlobalVariable(rnd, p)
	if !ok {
		t.Fatalf("ToGlobalVariable reported no candidate")
	}
	if len(clone.Globals) != 1 {
		t.Fatalf("expected one global declaration, got %d", len(clone.Globals))
	}
	if _, ok := clone.Globals[0].(*ast.Declaration); !ok {
		t.Fatalf("expected a global declaration, got %T", clone.Globals[0])
	}
}

func TestToFunctionSynthesizesCallee(t *testing.T) {
	p := programWithLiteral(5)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToFunction(rnd, p)
	if !ok {
		t.Fatalf("ToFunction reported no candidate")
	}
	if len(clone.Functions) != 1 {
		t.Fatalf("expected exactly one synthesized helper function, got %d", len(clone.Functions))
	}
	if clone.Main() != clone.ToplevelFn {
		t.Fatalf("the top-level function under mutation must be unaffected by synthesizing a helper")
	}
	out := ast.Print(clone)
	if !strings.Contains(out, "return 5;") {
		t.Fatalf("synthesized function body lost the literal: %s", out)
	}
}

func TestInsertIfWrapsUnreachableBranch(t *testing.T) {
	p := programWithLiteral(1)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := InsertIf(rnd, p)
	if !ok {
		t.Fatalf("InsertIf reported no candidate")
	}
	body := clone.Main().Body.(*ast.Block)

	var found *ast.If
	for _, s := range body.Statements {
		if ifStmt, ok := s.(*ast.If); ok {
			found = ifStmt
		}
	}
	if found == nil {
		t.Fatalf("InsertIf did not insert an if statement")
	}

	cond := found.Cond.(*ast.IntLiteral).Value
	_, trueUnreachable := found.True.(*ast.Unreachable)
	_, falseUnreachable := found.False.(*ast.Unreachable)
	if cond != 0 && !falseUnreachable {
		t.Fatalf("expected false branch to be unreachable when cond != 0")
	}
	if cond == 0 && !trueUnreachable {
		t.Fatalf("expected true branch to be unreachable when cond == 0")
	}
}

func TestInsertDivBy0OnlyTargetsUnreachableBlocks(t *testing.T) {
	p := programWithLiteral(1)
	rnd := rand.New(rand.NewSource(1))

	if _, ok := InsertDivBy0(rnd, p); ok {
		t.Fatalf("InsertDivBy0 matched with no unreachable block present")
	}

	p.Main().Body = ast.NewBlock(0,
		ast.NewUnreachable(0, ast.NewBlock(0)),
	)
	clone, ok := InsertDivBy0(rnd, p)
	if !ok {
		t.Fatalf("InsertDivBy0 found no unreachable block")
	}
	unreach := clone.Main().Body.(*ast.Block).Statements[0].(*ast.Unreachable)
	block := unreach.Expr.(*ast.Block)
	if len(block.Statements) != 1 {
		t.Fatalf("expected div-by-0 statement inserted into unreachable block")
	}
}

func TestToVariableAndAsmPinsVariableInAsm(t *testing.T) {
	p := programWithLiteral(4)
	rnd := rand.New(rand.NewSource(1))

	clone, ok := ToVariableAndAsm(rnd, p)
	if !ok {
		t.Fatalf("ToVariableAndAsm reported no candidate")
	}
	body := clone.Main().Body.(*ast.Block)
	decl := body.Statements[0].(*ast.Declaration)
	asmStmt := body.Statements[1].(*ast.AsmStatement)

	constraint := asmStmt.Outputs[0].(*ast.AsmConstraint)
	if constraint.Expr.(*ast.Variable).Name != decl.Var.(*ast.Variable).Name {
		t.Fatalf("asm constraint does not reference the hoisted variable")
	}
}
