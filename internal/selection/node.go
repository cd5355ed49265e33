package selection

import (
	"fmt"
	"strings"
)

// State is a node's selection state.
type State int8

const (
	Excluded State = iota
	Partial
	Included
)

func (s State) String() string {
	switch s {
	case Excluded:
		return "excluded"
	case Partial:
		return "partial"
	case Included:
		return "included"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind distinguishes files from directories.
type Kind int8

const (
	File Kind = iota
	Dir
)

func (k Kind) String() string {
	if k == Dir {
		return "dir"
	}
	return "file"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Node is one file or directory in the selection tree. Nodes are read-only
// outside this package; only Tree methods change their state.
type Node struct {
	path     string
	name     string
	kind     Kind
	state    State
	depth    int
	parent   *Node
	children []*Node
}

// Path returns the slash-separated path relative to the project root. The
// root node's path is "".
func (n *Node) Path() string { return n.path }

// Name returns the last path element.
func (n *Node) Name() string { return n.name }

// Kind returns File or Dir.
func (n *Node) Kind() Kind { return n.kind }

// State returns the node's current selection state.
func (n *Node) State() State { return n.state }

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.kind == Dir }

// Depth is 0 for the root, 1 for its children and so on.
func (n *Node) Depth() int { return n.depth }

// Children returns the node's children ordered by path.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// reduce derives a directory's state from its children: included iff every
// child is included, excluded iff every child is excluded, else partial.
// A directory without children is excluded.
func reduce(children []*Node) State {
	if len(children) == 0 {
		return Excluded
	}
	first := children[0].state
	if first == Partial {
		return Partial
	}
	for _, c := range children[1:] {
		if c.state != first {
			return Partial
		}
	}
	return first
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimSuffix(p, "/")
	if p == "." {
		return ""
	}
	return p
}
