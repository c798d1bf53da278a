// Package grammar implements the textual, grammar-driven program
// representation: a tree of nodes that are either a literal text fragment
// or an ordered sequence of children. Mutation grows the tree by expanding
// unexpanded leaves according to a fixed, externally-supplied production
// table (see mutate.go).
//
// The tree is persistent: SetChild and Replace never modify a node in
// place, they return a new root that shares every unaffected subtree with
// the old one. Node identity (not structural equality) is what the rest
// of the engine keys on, so identity is carried by an arena index rather
// than by Go pointer equality, which would break under value copies.
package grammar

import "strings"

// ID identifies a node within an Arena: its index in allocation order,
// starting at 0 for the first node allocated.
type ID int

// Node is either a terminal (Text set, no Children) or a non-terminal
// (Children set, Text typically empty). Fixed nodes are never selected by
// FindLeaves and are never rewritten by SetChild's callers.
type Node struct {
	Text     string
	Children []ID
	Fixed    bool
}

// Arena owns every Node ever created during a run. Mutating the tree
// allocates new Nodes in the arena rather than editing existing ones, so
// any ID handed out earlier keeps rendering exactly as it did when issued.
type Arena struct {
	nodes []Node
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) alloc(n Node) ID {
	a.nodes = append(a.nodes, n)
	return ID(len(a.nodes) - 1)
}

// Node returns the node stored at id.
func (a *Arena) Node(id ID) Node {
	return a.nodes[id]
}

// NewTerminal allocates a fixed or free leaf carrying a literal fragment.
func (a *Arena) NewTerminal(text string, fixed bool) ID {
	return a.alloc(Node{Text: text, Fixed: fixed})
}

// NewNonTerminal allocates a node with the given children.
func (a *Arena) NewNonTerminal(children ...ID) ID {
	return a.alloc(Node{Children: append([]ID(nil), children...)})
}

// Root returns an unexpanded, non-fixed leaf with no text and no children,
// the seed from which grammar expansion grows a program.
func (a *Arena) Root() ID {
	return a.alloc(Node{})
}

// SetChild returns a new node ID equal to n except that child i has been
// replaced by x. n itself is left untouched; this is the tree's one
// structural primitive.
func (a *Arena) SetChild(n ID, i int, x ID) ID {
	old := a.nodes[n]
	children := make([]ID, len(old.Children))
	copy(children, old.Children)
	children[i] = x
	return a.alloc(Node{Text: old.Text, Children: children, Fixed: old.Fixed})
}

// Replace walks root and returns a new root identical to root except that
// the first occurrence of a (by identity) along the tree is replaced by b.
//
// The implementation assumes a is present at most once; on finding a
// matching child it splices in the replacement and does not look at any
// sibling subtree. If a occurs more than once, only the first occurrence
// found along the traversal is replaced — this mirrors the "replaces one
// occurrence along the first matching path" contract the grammar engine
// relies on (see SPEC_FULL.md §11 / spec.md §9).
func (a *Arena) Replace(root, target, replacement ID) ID {
	if root == target {
		return replacement
	}

	children := a.nodes[root].Children
	for i, child := range children {
		newChild := a.Replace(child, target, replacement)
		if newChild != child {
			return a.SetChild(root, i, newChild)
		}
	}

	return root
}

// FindLeaves returns every non-fixed, childless node reachable from root.
// Traversal order is unspecified; callers that need a specific node pick
// uniformly (or otherwise) from the returned slice themselves.
func (a *Arena) FindLeaves(root ID) []ID {
	var result []ID
	seen := make(map[ID]bool)
	todo := []ID{root}

	for len(todo) > 0 {
		n := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if seen[n] {
			continue
		}
		seen[n] = true

		node := a.nodes[n]
		if len(node.Children) == 0 && !node.Fixed {
			result = append(result, n)
		}
		todo = append(todo, node.Children...)
	}

	return result
}

// Render returns the in-order textual concatenation of root: its own text
// fragment followed by each child's rendering, recursively.
func (a *Arena) Render(root ID) string {
	var sb strings.Builder
	a.render(root, &sb)
	return sb.String()
}

func (a *Arena) render(root ID, sb *strings.Builder) {
	n := a.nodes[root]
	sb.WriteString(n.Text)
	for _, c := range n.Children {
		a.render(c, sb)
	}
}
