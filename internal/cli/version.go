package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/grove/pkg/grove"
)

const modulePath = "github.com/mesh-intelligence/grove"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the grove version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "grove v%s\nmodule: %s\n", grove.Version, modulePath)
			return nil
		},
	}
}
