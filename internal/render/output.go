package render

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/joss/trackhub/internal/report"
	"github.com/joss/trackhub/internal/species"
	"github.com/joss/trackhub/internal/store"
)

// Report renders a pipeline report.
func (w *Writer) Report(pipeline string, r *report.Report) {
	w.Header("%s %s", pipeline, r.Status())

	for _, m := range r.SuccessMessages() {
		w.Item("%s %s", StatusIcon("success"), m)
	}
	for _, m := range r.WarningMessages() {
		w.Item("%s %s", StatusIcon("warning"), m)
	}
	for _, m := range r.ErrorMessages() {
		w.Item("%s %s", StatusIcon("error"), color.RedString(m))
	}

	if dir := r.SessionDir(); dir != "" {
		w.Section("session")
		w.Item("%s", dir)
	}
	if hub := r.HubDescriptorFile(); hub != "" {
		w.Item("hub: %s", hub)
	}
	if logs := r.LogFiles(); len(logs) > 0 {
		w.Section("logs")
		for _, l := range logs {
			w.Item("%s", l)
		}
	}
}

// Species renders the configured reference genomes.
func (w *Writer) Species(refs []species.Reference) {
	if len(refs) == 0 {
		w.Empty("No species configured")
		return
	}
	w.Header("SPECIES (%d)", len(refs))
	for _, r := range refs {
		w.Item("%-8s %-24s %s", r.TaxonomyID, Truncate(r.Name, 24), r.Assembly)
		w.Nested("fasta %s", r.ProteinSequenceFile)
		w.Nested("gtf   %s", r.GTFFile)
	}
}

// Runs renders a run history listing.
func (w *Writer) Runs(runs []*store.Run) {
	if len(runs) == 0 {
		w.Empty("No runs recorded")
		return
	}
	w.Header("RUN HISTORY (%d)", len(runs))
	for _, r := range runs {
		w.Println("%s %s %s %-28s %s (%s)",
			BoolIcon(r.OK),
			color.HiBlackString(r.StartedAt.Local().Format("2006-01-02 15:04:05")),
			r.ID,
			r.Pipeline,
			r.Status,
			FormatDuration(r.FinishedAt.Sub(r.StartedAt)),
		)
	}
}

// Run renders one run with its invocations.
func (w *Writer) Run(r *store.Run, invs []*store.Invocation) {
	w.Header("RUN %s", r.ID)
	w.Item("Pipeline: %s", r.Pipeline)
	w.Item("Status:   %s %s", StatusIcon(r.Status), r.Status)
	w.Item("Started:  %s", r.StartedAt.Local().Format(time.RFC3339))
	w.Item("Duration: %s", FormatDuration(r.FinishedAt.Sub(r.StartedAt)))
	if r.ReportPath != "" {
		w.Item("Report:   %s", r.ReportPath)
	}

	if len(invs) == 0 {
		return
	}
	w.Section(fmt.Sprintf("invocations (%d)", len(invs)))
	for _, inv := range invs {
		w.Item("%s %-8s %s (%s)", BoolIcon(inv.Success), inv.TaxonomyID, inv.InputFile, FormatDuration(inv.Duration))
		if inv.Error != "" {
			w.Nested("%s", Truncate(inv.Error, 100))
		}
	}
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
