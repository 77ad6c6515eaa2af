// Package main provides the trackhub CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joss/trackhub/internal/config"
)

var version = "0.1.0"

// app holds the global flags and the configuration they resolve to.
type app struct {
	configPath  string
	jsonOut     bool
	verbose     bool
	logLevel    string
	metricsPort int

	cfg *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "trackhub",
		Short: "Run PoGo based trackhub pipelines",
		Long: `trackhub runs batch pipelines that map peptides to genomes with PoGo
and summarize the results as trackhubs.

Usage modes:
  trackhub run <pipeline> [key=value ...]   Run a named pipeline
  trackhub pogo --taxonomy 9606 --in '*.pogo'
  trackhub history                         Show past runs`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default ~/.trackhub/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Mirror the session log to stderr")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&a.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port while running")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipelines", Title: "Pipelines:"},
		&cobra.Group{ID: "inspect", Title: "Inspection:"},
	)

	run := runCmd(a)
	run.GroupID = "pipelines"
	rootCmd.AddCommand(run)

	pogo := pogoCmd(a)
	pogo.GroupID = "pipelines"
	rootCmd.AddCommand(pogo)

	sp := speciesCmd(a)
	sp.GroupID = "inspect"
	rootCmd.AddCommand(sp)

	hist := historyCmd(a)
	hist.GroupID = "inspect"
	rootCmd.AddCommand(hist)

	doctor := doctorCmd(a)
	doctor.GroupID = "inspect"
	rootCmd.AddCommand(doctor)

	// Ungrouped
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// load resolves the configuration once, flags winning over files and env.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.MetricsPort = a.metricsPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "version",
		Short:            "Show trackhub version",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trackhub version %s\n", version)
		},
	}
}
