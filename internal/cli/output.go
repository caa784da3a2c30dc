package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// parseID parses a positive node id argument. Parents may also be 0.
func parseID(arg string, allowRoot bool) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not an integer", errInvalidArgument, arg)
	}
	if id < 0 || (id == 0 && !allowRoot) {
		return 0, fmt.Errorf("%w: id %d out of range", errInvalidArgument, id)
	}
	return id, nil
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// emit prints v as JSON under --json, otherwise it runs text.
func emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), v)
	}
	text(cmd.OutOrStdout())
	return nil
}
