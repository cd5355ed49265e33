package render

import (
	"io"
	"sort"
	"strings"

	"github.com/hpungsan/ctxpack/internal/selection"
)

type treeNode struct {
	name     string
	children map[string]*treeNode
}

// SourceTree draws the directory structure implied by paths, one entry per
// line, using box-drawing connectors. Only the given files and their
// parent directories appear. Siblings are ordered by name.
func SourceTree(paths []string) string {
	root := &treeNode{children: map[string]*treeNode{}}
	for _, p := range paths {
		n := root
		for _, part := range strings.Split(p, "/") {
			if part == "" {
				continue
			}
			child, ok := n.children[part]
			if !ok {
				child = &treeNode{name: part, children: map[string]*treeNode{}}
				n.children[part] = child
			}
			n = child
		}
	}

	var sb strings.Builder
	writeTree(&sb, root, "")
	return sb.String()
}

func writeTree(sb *strings.Builder, n *treeNode, prefix string) {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		child := n.children[name]
		connector, indent := "├── ", "│   "
		if i == len(names)-1 {
			connector, indent = "└── ", "    "
		}
		sb.WriteString(prefix + connector + name)
		if len(child.children) > 0 {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
		writeTree(sb, child, prefix+indent)
	}
}

// StatusOptions controls StatusTree.
type StatusOptions struct {
	// MaxDepth stops descending below this depth; 0 means unlimited.
	MaxDepth int
	// Collapse hides the children of fully included or excluded directories.
	Collapse bool
}

// Marker returns the checkbox shown for a state.
func Marker(s selection.State) string {
	switch s {
	case selection.Included:
		return "[x]"
	case selection.Partial:
		return "[-]"
	}
	return "[ ]"
}

// StatusTree writes the selection tree with a checkbox per node.
func StatusTree(w io.Writer, root *selection.Node, opts StatusOptions) error {
	var sb strings.Builder
	var visit func(n *selection.Node)
	visit = func(n *selection.Node) {
		for _, c := range n.Children() {
			sb.WriteString(strings.Repeat("  ", c.Depth()-1))
			sb.WriteString(Marker(c.State()))
			sb.WriteString(" ")
			sb.WriteString(c.Name())
			if c.IsDir() {
				sb.WriteString("/")
			}
			sb.WriteString("\n")

			if !c.IsDir() {
				continue
			}
			if opts.MaxDepth > 0 && c.Depth() >= opts.MaxDepth {
				continue
			}
			if opts.Collapse && c.State() != selection.Partial {
				continue
			}
			visit(c)
		}
	}
	visit(root)
	_, err := io.WriteString(w, sb.String())
	return err
}
