package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joss/trackhub/internal/logging"
	"github.com/joss/trackhub/internal/metrics"
	"github.com/joss/trackhub/internal/pipeline"
	"github.com/joss/trackhub/internal/session"
	"github.com/joss/trackhub/internal/species"
	"github.com/joss/trackhub/internal/store"
)

// errPipelineFailed makes the process exit non-zero after a FAIL run.
var errPipelineFailed = errors.New("pipeline failed")

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline> [key=value ...]",
		Short: "Run a pipeline",
		Long: fmt.Sprintf(`Run a named pipeline with key=value arguments.

Pipelines:
  %s`, strings.Join(pipeline.Names(), "\n  ")),
		Example: `  trackhub run create_trackhub_for_project project_data_file=PXD000625.json
  trackhub run run_pogo_for_file input='data/**/*.pogo' taxonomy=9606 mm=1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pargs, err := pipeline.ParseArgs(args[1:])
			if err != nil {
				return err
			}
			return a.runPipeline(cmd, args[0], pargs)
		},
	}
}

func pogoCmd(a *app) *cobra.Command {
	var (
		taxonomy string
		input    string
		mm       int
	)
	cmd := &cobra.Command{
		Use:   "pogo",
		Short: "Run PoGo over every file matching a pattern",
		Long: `Shortcut for 'trackhub run run_pogo_for_file'.

The input pattern accepts ** to match nested directories. Outputs are
written next to each input unless pogo.isolate_outputs is set.`,
		Example: `  trackhub pogo --taxonomy 9606 --in 'data/**/*.pogo' --mm 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pargs := pipeline.Args{
				pipeline.ArgTaxonomy: taxonomy,
				pipeline.ArgInput:    input,
			}
			if cmd.Flags().Changed("mm") {
				pargs[pipeline.ArgMismatches] = strconv.Itoa(mm)
			}
			return a.runPipeline(cmd, pipeline.PogoForFilesName, pargs)
		},
	}
	cmd.Flags().StringVar(&taxonomy, "taxonomy", "", "NCBI taxonomy id of the input peptides")
	cmd.Flags().StringVar(&input, "in", "", "Input file or glob pattern")
	cmd.Flags().IntVar(&mm, "mm", 0, "Allowed mismatches passed to PoGo as -mm")
	cmd.MarkFlagRequired("taxonomy")
	cmd.MarkFlagRequired("in")
	return cmd
}

// runPipeline wires a session, logs, history and metrics around one
// pipeline execution and renders its report.
func (a *app) runPipeline(cmd *cobra.Command, name string, args pipeline.Args) error {
	if _, ok := pipeline.Lookup(name); !ok {
		return errors.Wrapf(pipeline.ErrUnknownPipeline, "%q (known: %s)", name, strings.Join(pipeline.Names(), ", "))
	}
	cfg := a.cfg
	ctx := cmd.Context()

	s, err := session.New(cfg.SessionsDir, name)
	if err != nil {
		return err
	}

	var writers []io.Writer
	if a.verbose {
		writers = append(writers, os.Stderr)
	}
	logs := logging.NewFactory(logging.ParseLevel(cfg.LogLevel), writers...)
	defer logs.Close()
	if err := logs.AddFile(s.LogFile()); err != nil {
		return err
	}
	log := logs.For("cli")

	history, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer history.Close()

	m := metrics.New()
	if cfg.MetricsPort > 0 {
		srv := metrics.NewServer(m, cfg.MetricsPort)
		if err := srv.Start(); err != nil {
			return err
		}
		log.Info("metrics_serving", map[string]any{"addr": srv.Addr()})
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Stop(stopCtx)
		}()
	}

	log.Info("pipeline_starting", map[string]any{"pipeline": name, "session": s.Dir()})
	out, err := pipeline.Execute(ctx, name, args, pipeline.Deps{
		Config:  cfg,
		Session: s,
		Logs:    logs,
		Species: species.FromConfig(cfg),
		History: history,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	if a.jsonOut {
		if err := printJSON(cmd.OutOrStdout(), out.Report); err != nil {
			return err
		}
	} else {
		writerFor(cmd).Report(name, out.Report)
	}

	if !out.OK {
		return errors.Wrapf(errPipelineFailed, "%s finished with status %s", name, out.Status)
	}
	return nil
}
