package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joss/trackhub/internal/selftest"
)

// errUnhealthy signals a failed environment check.
var errUnhealthy = errors.New("environment unhealthy")

func doctorCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that pipelines can run here",
		Long: `Diagnose the trackhub runtime environment.

Checks:
  - PoGo binary and launch shell
  - Sessions directory is writable
  - History database opens
  - Reference files of every configured species`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := selftest.Check(cmd.Context(), a.cfg)

			switch {
			case a.jsonOut:
				if err := printJSON(cmd.OutOrStdout(), env); err != nil {
					return err
				}
			case verbose:
				fmt.Fprint(cmd.OutOrStdout(), env.Summary())
			default:
				fmt.Fprintln(cmd.OutOrStdout(), env.QuickCheck())
			}

			if !env.IsHealthy() {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "details", false, "Show detailed diagnostics")
	return cmd
}
