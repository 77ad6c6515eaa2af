package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/trackhub/internal/render"
)

// writerFor renders to the command output, with terminal color detection
// when that output is the real stdout.
func writerFor(cmd *cobra.Command) *render.Writer {
	out := cmd.OutOrStdout()
	if out == os.Stdout {
		return render.Stdout()
	}
	return render.NewWriter(out)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
