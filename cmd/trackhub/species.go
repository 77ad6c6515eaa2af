package main

import (
	"github.com/spf13/cobra"

	"github.com/joss/trackhub/internal/species"
)

func speciesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "species",
		Short: "List the configured reference genomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := species.FromConfig(a.cfg).List()
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), refs)
			}
			writerFor(cmd).Species(refs)
			return nil
		},
	}
}
