package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/types"
)

type cloneResult struct {
	Source int64   `json:"source"`
	Clone  int64   `json:"clone"`
	IDs    []int64 `json:"ids"`
}

func newCloneCmd() *cobra.Command {
	var parent int64
	cmd := &cobra.Command{
		Use:   "clone <id>",
		Short: `Copy a subtree under another parent, adding " (copy)" to every name`,
		Args:  cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			src, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			if parent < 0 {
				return fmt.Errorf("%w: parent %d out of range", errInvalidArgument, parent)
			}
			id, ok, err := f.CloneSubtree(src, parent)
			return reportClone(cmd, f, src, id, ok, err)
		}),
	}
	cmd.Flags().Int64Var(&parent, "parent", types.RootID, "parent id for the copy (0 for a root)")
	return cmd
}

func newDuplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy a subtree next to itself, under the same parent",
		Args:  cobra.ExactArgs(1),
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			src, err := parseID(args[0], false)
			if err != nil {
				return err
			}
			id, ok, err := f.Duplicate(src)
			return reportClone(cmd, f, src, id, ok, err)
		}),
	}
}

func reportClone(cmd *cobra.Command, f types.Forest, src, id int64, ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("clone node %d: %w", src, err)
	}
	if !ok {
		return fmt.Errorf("clone node %d: %w", src, types.ErrNotFound)
	}
	ids, err := f.SubtreeIDs(id)
	if err != nil {
		return fmt.Errorf("clone node %d: %w", src, err)
	}
	res := cloneResult{Source: src, Clone: id, IDs: ids}
	return emit(cmd, res, func(w io.Writer) {
		fmt.Fprintf(w, "Cloned node %d as %d (%d node(s))\n", src, id, len(ids))
	})
}
