package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/types"
)

func newAddCmd() *cobra.Command {
	var parent int64
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a node",
		Long: "Add a node with the given name, stored exactly as given.\n" +
			"Without --parent the node becomes a root.",
		Args: cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			if parent < 0 {
				return fmt.Errorf("%w: parent %d out of range", errInvalidArgument, parent)
			}
			id, err := f.Add(parent, args[0])
			if err != nil {
				return fmt.Errorf("add node: %w", err)
			}
			node, _ := f.Get(id)
			return emit(cmd, node, func(w io.Writer) {
				fmt.Fprintf(w, "Added node %d\n", id)
			})
		}),
	}
	cmd.Flags().Int64Var(&parent, "parent", types.RootID, "parent node id (0 for a root)")
	return cmd
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a node; surrounding whitespace is trimmed",
		Args:  cobra.ExactArgs(2),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			id, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			ok, err := f.Rename(id, args[1])
			if err != nil {
				return fmt.Errorf("rename node %d: %w", id, err)
			}
			if !ok {
				return fmt.Errorf("rename node %d: %w", id, types.ErrNotFound)
			}
			node, _ := f.Get(id)
			return emit(cmd, node, func(w io.Writer) {
				fmt.Fprintf(w, "Renamed node %d to %q\n", id, node.Name)
			})
		}),
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <parent-id>",
		Short: "Move a node under a new parent",
		Long: "Re-parent a node together with its subtree. Use 0 as parent-id to make it a root.\n" +
			"A node cannot be moved into its own subtree.",
		Args: cobra.ExactArgs(2),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			id, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			parent, err := parseID(args[1], true)
			if err != nil {
				return err
			}
			if err := f.Move(id, parent); err != nil {
				return fmt.Errorf("move node %d: %w", id, err)
			}
			node, _ := f.Get(id)
			return emit(cmd, node, func(w io.Writer) {
				fmt.Fprintf(w, "Moved node %d under %d\n", id, parent)
			})
		}),
	}
}
