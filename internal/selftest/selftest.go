// Package selftest validates that the local environment can run pipelines.
package selftest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/joss/trackhub/internal/config"
	"github.com/joss/trackhub/internal/store"
)

// Environment describes what a pipeline run would find.
type Environment struct {
	HasTTY           bool
	PogoBinary       string // resolved path, empty when missing
	Shell            string // resolved path, empty when missing
	SessionsWritable bool
	HistoryOK        bool
	References       map[string]bool // taxonomy id -> both reference files present
	Warnings         []string
	Errors           []string
}

// Check performs a complete environment validation against cfg.
func Check(ctx context.Context, cfg *config.Config) *Environment {
	env := &Environment{
		References: make(map[string]bool),
	}

	env.HasTTY = term.IsTerminal(int(os.Stdout.Fd()))

	env.checkPogo(cfg.Pogo.Binary)
	env.checkShell(cfg.Pogo.Shell)
	env.checkSessions(cfg.SessionsDir)
	env.checkHistory(ctx, cfg.DataDir)
	env.checkReferences(cfg.Species)

	return env
}

func (e *Environment) checkPogo(binary string) {
	switch {
	case binary == "":
		e.Errors = append(e.Errors, "PoGo binary not configured")
	case strings.ContainsRune(binary, filepath.Separator):
		if info, err := os.Stat(binary); err != nil || info.IsDir() {
			e.Errors = append(e.Errors, fmt.Sprintf("PoGo binary not found: %s", binary))
			return
		}
		e.PogoBinary = binary
	default:
		path, err := exec.LookPath(binary)
		if err != nil {
			e.Errors = append(e.Errors, fmt.Sprintf("PoGo binary not on PATH: %s", binary))
			return
		}
		e.PogoBinary = path
	}
}

func (e *Environment) checkShell(shell string) {
	if shell == "" {
		shell = "/bin/sh"
	}
	path, err := exec.LookPath(shell)
	if err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("Shell not found: %s", shell))
		return
	}
	e.Shell = path
}

func (e *Environment) checkSessions(dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("Sessions dir not usable: %v", err))
		return
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("Sessions dir not writable: %s", dir))
		return
	}
	f.Close()
	os.Remove(f.Name())
	e.SessionsWritable = true
}

func (e *Environment) checkHistory(ctx context.Context, dataDir string) {
	h, err := store.Open(dataDir)
	if err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("History database unavailable: %v", err))
		return
	}
	defer h.Close()
	if err := h.Ping(ctx); err != nil {
		e.Errors = append(e.Errors, fmt.Sprintf("History database unavailable: %v", err))
		return
	}
	e.HistoryOK = true
}

func (e *Environment) checkReferences(species []config.Species) {
	if len(species) == 0 {
		e.Warnings = append(e.Warnings, "No species configured, every pipeline will skip its tracks")
		return
	}
	for _, s := range species {
		ok := true
		for _, f := range []struct{ label, path string }{
			{"protein sequence file", s.ProteinSequenceFile},
			{"GTF file", s.GTFFile},
		} {
			if _, err := os.Stat(f.path); err != nil {
				ok = false
				e.Warnings = append(e.Warnings, fmt.Sprintf("Species %s: %s missing (%s)", s.TaxonomyID, f.label, f.path))
			}
		}
		e.References[s.TaxonomyID] = ok
	}
}

// IsHealthy returns true if pipelines can be run at all.
func (e *Environment) IsHealthy() bool {
	return len(e.Errors) == 0
}

// Summary returns a human-readable summary.
func (e *Environment) Summary() string {
	var sb strings.Builder

	sb.WriteString("TRACKHUB ENVIRONMENT CHECK\n")
	sb.WriteString(strings.Repeat("─", 40) + "\n")

	sb.WriteString(fmt.Sprintf("PoGo:         %s\n", orMissing(e.PogoBinary)))
	sb.WriteString(fmt.Sprintf("Shell:        %s\n", orMissing(e.Shell)))
	sb.WriteString(fmt.Sprintf("Sessions:     %s\n", okOr(e.SessionsWritable, "Not writable")))
	sb.WriteString(fmt.Sprintf("History:      %s\n", okOr(e.HistoryOK, "Unavailable")))

	if len(e.References) > 0 {
		sb.WriteString("References:\n")
		ids := make([]string, 0, len(e.References))
		for id := range e.References {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			sb.WriteString(fmt.Sprintf("  %-12s %s\n", id, okOr(e.References[id], "Incomplete")))
		}
	}

	if len(e.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range e.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", w))
		}
	}

	if len(e.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, err := range e.Errors {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", err))
		}
	}

	sb.WriteString("\n")
	if e.IsHealthy() {
		sb.WriteString("Status: HEALTHY\n")
	} else {
		sb.WriteString("Status: UNHEALTHY - fix errors above\n")
	}

	return sb.String()
}

// QuickCheck returns a one-line status suitable for non-verbose output.
func (e *Environment) QuickCheck() string {
	if !e.IsHealthy() {
		return fmt.Sprintf("Environment unhealthy: %s", strings.Join(e.Errors, "; "))
	}
	ready := 0
	for _, ok := range e.References {
		if ok {
			ready++
		}
	}
	return fmt.Sprintf("pogo:%s species:%d/%d warnings:%d", e.PogoBinary, ready, len(e.References), len(e.Warnings))
}

func orMissing(s string) string {
	if s == "" {
		return "NOT FOUND"
	}
	return s
}

func okOr(ok bool, otherwise string) string {
	if ok {
		return "OK"
	}
	return otherwise
}
