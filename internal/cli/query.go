package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/types"
)

type nodeDetail struct {
	Node      types.Node   `json:"node"`
	Ancestors []types.Node `json:"ancestors"`
	Children  []types.Node `json:"children"`
}

func newChildrenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "children [parent-id]",
		Short: "List the direct children of a node (roots when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			parent := types.RootID
			if len(args) == 1 {
				var err error
				if parent, err = parseID(args[0], true); err != nil {
					return err
				}
			}
			children := f.ChildrenOf(parent)
			if children == nil {
				children = []types.Node{}
			}
			return emit(cmd, children, func(w io.Writer) {
				printNodeTable(w, children)
			})
		}),
	}
}

func newSubtreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subtree <id>",
		Short: "List the ids of a node and all its descendants in pre-order",
		Args:  cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			id, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			if _, ok := f.Get(id); !ok {
				return fmt.Errorf("subtree of %d: %w", id, types.ErrNotFound)
			}
			ids, err := f.SubtreeIDs(id)
			if err != nil {
				return fmt.Errorf("subtree of %d: %w", id, err)
			}
			return emit(cmd, ids, func(w io.Writer) {
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
			})
		}),
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a node with its path and children",
		Args:  cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			id, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			node, ok := f.Get(id)
			if !ok {
				return fmt.Errorf("show node %d: %w", id, types.ErrNotFound)
			}
			chain, err := f.Ancestors(id)
			if err != nil {
				return fmt.Errorf("show node %d: %w", id, err)
			}

			detail := nodeDetail{Node: node, Ancestors: []types.Node{}, Children: f.ChildrenOf(id)}
			if detail.Children == nil {
				detail.Children = []types.Node{}
			}
			for _, a := range chain {
				if n, ok := f.Get(a); ok {
					detail.Ancestors = append(detail.Ancestors, n)
				}
			}

			return emit(cmd, detail, func(w io.Writer) {
				path := make([]string, 0, len(detail.Ancestors)+1)
				for i := len(detail.Ancestors) - 1; i >= 0; i-- {
					path = append(path, detail.Ancestors[i].Name)
				}
				path = append(path, node.Name)

				fmt.Fprintf(w, "ID:       %d\n", node.ID)
				fmt.Fprintf(w, "Name:     %s\n", node.Name)
				fmt.Fprintf(w, "Parent:   %d\n", node.ParentID)
				fmt.Fprintf(w, "Path:     %s\n", strings.Join(path, " / "))
				fmt.Fprintf(w, "Children: %d\n", len(detail.Children))
			})
		}),
	}
}

func printNodeTable(w io.Writer, nodes []types.Node) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tNAME")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", n.ID, n.ParentID, n.Name)
	}
	tw.Flush()
}
