package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/types"
)

type statsResult struct {
	types.ForestStats
	Snapshot types.SnapshotInfo `json:"snapshot"`
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify id uniqueness, parent references and acyclicity",
		Args:  cobra.NoArgs,
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			if err := f.Verify(); err != nil {
				problems := []string{err.Error()}
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					problems = problems[:0]
					for _, e := range joined.Unwrap() {
						problems = append(problems, e.Error())
					}
				}
				if flags.jsonMode {
					if perr := printJSON(cmd.OutOrStdout(), map[string]any{"ok": false, "problems": problems}); perr != nil {
						return perr
					}
				}
				return fmt.Errorf("check failed with %d problem(s): %w", len(problems), err)
			}
			n := len(f.Nodes())
			return emit(cmd, map[string]any{"ok": true, "nodes": n}, func(w io.Writer) {
				fmt.Fprintf(w, "OK: %s node(s), no problems found\n", humanize.Comma(int64(n)))
			})
		}),
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the forest and its snapshot",
		Args:  cobra.NoArgs,
		RunE: withForest(func(cmd *cobra.Command, f types.Forest, args []string) error {
			stats, err := f.Stats()
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			info, err := f.SnapshotInfo()
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			res := statsResult{ForestStats: stats, Snapshot: info}
			return emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "Nodes:     %s\n", humanize.Comma(int64(stats.Nodes)))
				fmt.Fprintf(w, "Roots:     %s\n", humanize.Comma(int64(stats.Roots)))
				fmt.Fprintf(w, "Max depth: %d\n", stats.MaxDepth)
				fmt.Fprintf(w, "Last id:   %d\n", stats.LastID)
				if stats.Revision != "" {
					fmt.Fprintf(w, "Revision:  %s\n", stats.Revision)
				}
				fmt.Fprintf(w, "Backend:   %s\n", info.Backend)
				fmt.Fprintf(w, "Snapshot:  %s (%s)\n", info.Path, humanize.Bytes(uint64(max(info.Bytes, 0))))
			})
		}),
	}
}
