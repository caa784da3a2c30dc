package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// outlineNode is the nested JSON form of a subtree.
type outlineNode struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Children []outlineNode `json:"children,omitempty"`
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [id]",
		Short: "Print the forest, or one subtree, as an outline",
		Args:  cobra.MaximumNArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			var tops []types.Node
			children := childIndex(f.Nodes())
			if len(args) == 1 {
				id, err := parseID(args[0], false)
				if err != nil {
					return err
				}
				node, ok := f.Get(id)
				if !ok {
					return fmt.Errorf("tree of %d: %w", id, types.ErrNotFound)
				}
				// Fails on a cycle below id before the walk can loop.
				if _, err := f.SubtreeIDs(id); err != nil {
					return fmt.Errorf("tree of %d: %w", id, err)
				}
				tops = []types.Node{node}
			} else {
				tops = children[types.RootID]
			}

			outline := make([]outlineNode, 0, len(tops))
			for _, n := range tops {
				outline = append(outline, buildOutline(n, children))
			}
			return emit(cmd, outline, func(w io.Writer) {
				if len(outline) == 0 {
					fmt.Fprintln(w, "No nodes")
					return
				}
				for _, o := range outline {
					fmt.Fprintf(w, "%s [%d]\n", o.Name, o.ID)
					printOutline(w, o.Children, "")
				}
			})
		}),
	}
}

func childIndex(nodes []types.Node) map[int64][]types.Node {
	idx := make(map[int64][]types.Node, len(nodes))
	for _, n := range nodes {
		idx[n.ParentID] = append(idx[n.ParentID], n)
	}
	return idx
}

func buildOutline(n types.Node, children map[int64][]types.Node) outlineNode {
	o := outlineNode{ID: n.ID, Name: n.Name}
	for _, c := range children[n.ID] {
		o.Children = append(o.Children, buildOutline(c, children))
	}
	return o
}

func printOutline(w io.Writer, nodes []outlineNode, prefix string) {
	for i, o := range nodes {
		branch, indent := "├── ", "│   "
		if i == len(nodes)-1 {
			branch, indent = "└── ", "    "
		}
		fmt.Fprintf(w, "%s%s%s [%d]\n", prefix, branch, o.Name, o.ID)
		printOutline(w, o.Children, prefix+indent)
	}
}
