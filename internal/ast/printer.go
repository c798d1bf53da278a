package ast

import (
	"fmt"
	"strings"
)

// Printer renders a Program to the compilation unit the sandbox feeds to
// the compiler. It is a thin wrapper around strings.Builder that tracks
// indentation so nested blocks read the way a human-authored test case
// would, which matters for triage when a candidate ICE is kept around for
// manual inspection.
type Printer struct {
	sb strings.Builder
}

func (p *Printer) writeIndent(indent int) {
	for i := 0; i < indent; i++ {
		p.sb.WriteString("\t")
	}
}

func (p *Printer) write(s string) {
	p.sb.WriteString(s)
}

func (p *Printer) writef(format string, args ...interface{}) {
	fmt.Fprintf(&p.sb, format, args...)
}

// Print renders prog as a standalone compilation unit: an extern "C"
// declaration of printf, every global declaration, every helper function,
// the top-level function under mutation, and a synthesized main that
// prints the top-level function's return value in decimal followed by a
// newline. The sandbox compares that printed value against TargetValue to
// detect a miscompilation.
func Print(prog *Program) string {
	p := &Printer{}
	p.write("extern \"C\" {\n")
	p.write("extern int printf(const char *__restrict, ...);\n")
	p.write("}\n\n")

	for _, g := range prog.Globals {
		g.Print(p, 0)
		p.write(";\n")
	}
	for _, fn := range prog.Functions {
		printFunction(p, fn)
	}
	printFunction(p, prog.ToplevelFn)

	p.write("int main(int argc, char *argv[])\n{\n")
	p.writef("  printf(\"%%d\\n\", %s());\n", prog.ToplevelFn.Name)
	p.write("}\n")
	return p.sb.String()
}

func printFunction(p *Printer, fn *Function) {
	p.writef("%s %s(", fn.ReturnType.Name, fn.Name)
	for i, param := range fn.Params {
		if i > 0 {
			p.write(", ")
		}
		p.writef("%s %s", param.Typ.Name, param.Name)
	}
	p.write(")\n")
	fn.Body.Print(p, 0)
	p.write("\n")
}

func (e *IntLiteral) Print(p *Printer, indent int) {
	p.writef("%d", e.Value)
}

func (e *Variable) Print(p *Printer, indent int) {
	p.write(e.Name)
}

func (e *Cast) Print(p *Printer, indent int) {
	p.writef("(%s)(", e.Typ.Name)
	e.Expr.Print(p, indent)
	p.write(")")
}

func (e *Call) Print(p *Printer, indent int) {
	e.Fn.Print(p, indent)
	p.write("(")
	for i, a := range e.Args {
		if i > 0 {
			p.write(", ")
		}
		a.Print(p, indent)
	}
	p.write(")")
}

func (e *PrefixOp) Print(p *Printer, indent int) {
	p.write(e.Op)
	p.write("(")
	e.Arg.Print(p, indent)
	p.write(")")
}

func (e *BinOp) Print(p *Printer, indent int) {
	p.write("(")
	e.Lhs.Print(p, indent)
	p.writef(" %s ", e.Op)
	e.Rhs.Print(p, indent)
	p.write(")")
}

func (e *TernOp) Print(p *Printer, indent int) {
	p.write("(")
	e.Arg1.Print(p, indent)
	p.writef(" %s ", e.Op1)
	e.Arg2.Print(p, indent)
	p.writef(" %s ", e.Op2)
	e.Arg3.Print(p, indent)
	p.write(")")
}

func (e *Unreachable) Print(p *Printer, indent int) {
	e.Expr.Print(p, indent)
}

func (e *Declaration) Print(p *Printer, indent int) {
	p.writeIndent(indent)
	p.writef("%s ", e.VarType.Name)
	e.Var.Print(p, indent)
	p.write(" = ")
	e.Value.Print(p, indent)
	p.write(";")
}

func (e *Return) Print(p *Printer, indent int) {
	p.writeIndent(indent)
	p.write("return ")
	e.Expr.Print(p, indent)
	p.write(";")
}

func (e *Block) Print(p *Printer, indent int) {
	p.writeIndent(indent)
	p.write("{\n")
	for _, s := range e.Statements {
		s.Print(p, indent+1)
		p.write("\n")
	}
	p.writeIndent(indent)
	p.write("}")
}

func (e *If) Print(p *Printer, indent int) {
	p.writeIndent(indent)
	p.write("if (")
	e.Cond.Print(p, indent)
	p.write(")\n")
	e.True.Print(p, indent)
	if e.False != nil {
		p.write("\n")
		p.writeIndent(indent)
		p.write("else\n")
		e.False.Print(p, indent)
	}
}

func (e *AsmConstraint) Print(p *Printer, indent int) {
	p.writef("%q(", e.Constraint)
	e.Expr.Print(p, indent)
	p.write(")")
}

func (e *AsmStatement) Print(p *Printer, indent int) {
	p.writeIndent(indent)
	p.write("asm ")
	if e.Volatile {
		p.write("volatile ")
	}
	p.write("(\"\"")
	if len(e.Outputs) > 0 || len(e.Inputs) > 0 {
		p.write(" : ")
		for i, o := range e.Outputs {
			if i > 0 {
				p.write(", ")
			}
			o.Print(p, indent)
		}
	}
	if len(e.Inputs) > 0 {
		p.write(" : ")
		for i, in := range e.Inputs {
			if i > 0 {
				p.write(", ")
			}
			in.Print(p, indent)
		}
	}
	p.write(");")
}

func (e *StatementExpression) Print(p *Printer, indent int) {
	p.write("({\n")
	if b, ok := e.Block.(*Block); ok {
		for _, s := range b.Statements {
			s.Print(p, indent+1)
			p.write("\n")
		}
	}
	e.Last.Print(p, indent+1)
	p.write("\n")
	p.writeIndent(indent)
	p.write("})")
}

func (e *ExprStatement) Print(p *Printer, indent int) {
	p.writeIndent(indent)
	e.Expr.Print(p, indent)
	p.write(";")
}
