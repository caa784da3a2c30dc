package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/types"
)

type deleteResult struct {
	Deleted []int64 `json:"deleted"`
}

type flattenResult struct {
	Removed  int64   `json:"removed,omitempty"`
	Promoted []int64 `json:"promoted"`
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a node and its whole subtree",
		Args:  cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			id, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			res := deleteResult{Deleted: []int64{}}
			if _, ok := f.Get(id); ok {
				if res.Deleted, err = f.SubtreeIDs(id); err != nil {
					return fmt.Errorf("delete node %d: %w", id, err)
				}
			}
			if err := f.DeleteSubtree(id); err != nil {
				return fmt.Errorf("delete node %d: %w", id, err)
			}
			return emit(cmd, res, func(w io.Writer) {
				if len(res.Deleted) == 0 {
					fmt.Fprintf(w, "Node %d not found, nothing deleted\n", id)
					return
				}
				fmt.Fprintf(w, "Deleted %d node(s)\n", len(res.Deleted))
			})
		}),
	}
}

func newFlattenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <id>",
		Short: "Delete a node and promote its children to its parent",
		Args:  cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			id, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			res := flattenResult{Promoted: []int64{}}
			if _, ok := f.Get(id); ok {
				res.Removed = id
				for _, c := range f.ChildrenOf(id) {
					res.Promoted = append(res.Promoted, c.ID)
				}
			}
			if err := f.FlattenDelete(id); err != nil {
				return fmt.Errorf("flatten node %d: %w", id, err)
			}
			return emit(cmd, res, func(w io.Writer) {
				if res.Removed == 0 {
					fmt.Fprintf(w, "Node %d not found, nothing removed\n", id)
					return
				}
				fmt.Fprintf(w, "Removed node %d, promoted %d child(ren)\n", id, len(res.Promoted))
			})
		}),
	}
}
