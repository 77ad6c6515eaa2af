package main

import (
	"github.com/spf13/cobra"

	"github.com/joss/trackhub/internal/store"
)

func historyCmd(a *app) *cobra.Command {
	var (
		limit        int
		pipelineName string
		failedOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := store.Open(a.cfg.DataDir)
			if err != nil {
				return err
			}
			defer h.Close()

			f := store.DefaultFilter().WithLimit(limit)
			if pipelineName != "" {
				f = f.WithWhere("pipeline", pipelineName)
			}
			if failedOnly {
				f = f.WithWhere("ok", false)
			}

			runs, err := h.ListRuns(cmd.Context(), f)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			writerFor(cmd).Runs(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().StringVar(&pipelineName, "pipeline", "", "Only show runs of this pipeline")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show runs that ended in FAIL")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its PoGo invocations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := store.Open(a.cfg.DataDir)
			if err != nil {
				return err
			}
			defer h.Close()

			run, err := h.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			invs, err := h.Invocations(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"run": run, "invocations": invs})
			}
			writerFor(cmd).Run(run, invs)
			return nil
		},
	})
	return cmd
}
