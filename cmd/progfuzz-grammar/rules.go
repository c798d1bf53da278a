package main

import (
	"fmt"
	"math/rand"

	"github.com/vegard/prog-fuzz/internal/grammar"
)

// fragment is one piece of a production's right-hand side: either a fixed
// literal (punctuation, keywords) or a fresh free leaf that mutate() can
// expand further later. This mirrors the mixed literal/`[free]` syntax
// the upstream rule compiler accepts, one production per line.
type fragment struct {
	text  string
	fixed bool
}

func lit(s string) fragment { return fragment{text: s, fixed: true} }
func free() fragment        { return fragment{} }

func rule(fragments ...fragment) grammar.Production {
	return grammar.Production{
		Applicable: func(a *grammar.Arena, leaf grammar.ID) bool { return true },
		Expand: func(a *grammar.Arena, rnd *rand.Rand, leaf grammar.ID) grammar.ID {
			children := make([]grammar.ID, len(fragments))
			for i, f := range fragments {
				children[i] = a.NewTerminal(f.text, f.fixed)
			}
			return a.NewNonTerminal(children...)
		},
	}
}

// digitRule expands a leaf into a fixed single-digit literal, one rule
// per digit 0-9.
func digitRule(d int) grammar.Production {
	return rule(lit(fmt.Sprintf("%d", d)))
}

// defaultTable is the grammar shipped with this binary: enough
// productions to grow a minimal standalone C translation unit from an
// empty root, rooted at "int main() { return <expr>; }\n" with <expr>
// free to keep expanding into arithmetic on integer literals. A real
// deployment substitutes a table compiled from a production file; the
// engine itself never depends on this particular set.
var defaultTable = grammar.Table{
	rule(lit("int main() { return "), free(), lit("; }\n")),
	rule(free(), lit(" + "), free()),
	rule(free(), lit(" * "), free()),
	rule(free(), lit(" - "), free()),
	rule(lit("("), free(), lit(")")),
	digitRule(0),
	digitRule(1),
	digitRule(2),
	digitRule(3),
	digitRule(4),
	digitRule(5),
	digitRule(6),
	digitRule(7),
	digitRule(8),
	digitRule(9),
}
