package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// WriteJob writes a single job in the specified format
func WriteJob(w io.Writer, job *entity.Job, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, job)
	case FormatText:
		writeJobText(w, job)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteJobs writes a job listing in the specified format
func WriteJobs(w io.Writer, list []entity.Job, format OutputFormat) error {
	switch format {
	case FormatJSON:
		if list == nil {
			list = []entity.Job{}
		}
		return writeJSON(w, list)
	case FormatText:
		return writeJobsText(w, list)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteDedupReport writes a dedup report in the specified format
func WriteDedupReport(w io.Writer, report *reconcile.DedupReport, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatText:
		writeDedupText(w, report)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs v as indented JSON
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeJobText(w io.Writer, job *entity.Job) {
	result := job.Result.Data()
	fmt.Fprintf(w, "Job %d (%s): %s\n", job.ID, job.Type, job.Status)
	if job.StartedAt != nil && job.EndedAt != nil {
		fmt.Fprintf(w, "  Duration: %s\n", job.EndedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
	if result.Message != "" {
		fmt.Fprintf(w, "  %s\n", result.Message)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", result.Error)
	}
	if result.Diagnostics != "" {
		fmt.Fprintln(w, "  Diagnostics:")
		for _, line := range strings.Split(strings.TrimRight(result.Diagnostics, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func writeJobsText(w io.Writer, list []entity.Job) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No jobs found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tCREATED\tRESULT")
	for i := range list {
		job := &list[i]
		result := job.Result.Data()
		summary := result.Message
		if result.Error != "" {
			summary = result.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			job.ID, job.Type, job.Status, job.CreatedAt.UTC().Format(time.RFC3339), summary)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal: %d jobs\n", len(list))
	return nil
}

func writeDedupText(w io.Writer, report *reconcile.DedupReport) {
	if len(report.Collisions) == 0 && len(report.Fragments) == 0 {
		fmt.Fprintln(w, "No duplicates found.")
		return
	}

	for _, c := range report.Collisions {
		fmt.Fprintf(w, "%s %q (id %d) <- %d duplicate(s):\n", c.Survivor.Kind, c.Survivor.Name, c.Survivor.ID, len(c.Losers))
		for _, l := range c.Losers {
			fmt.Fprintf(w, "  %q (id %d)\n", l.Name, l.ID)
		}
	}
	if len(report.Fragments) > 0 {
		fmt.Fprintf(w, "\nFragments (%d):\n", len(report.Fragments))
		for _, f := range report.Fragments {
			fmt.Fprintf(w, "  %s %q (id %d)\n", f.Kind, f.Name, f.ID)
		}
	}

	if report.Policy == reconcile.PolicyReport {
		fmt.Fprintf(w, "\nReport only: %d collision(s), %d fragment(s), nothing changed\n",
			len(report.Collisions), len(report.Fragments))
		return
	}
	fmt.Fprintf(w, "\nMerged %d, deleted %d, moved %d association(s)\n",
		report.Merged, report.Deleted, report.AssociationsMoved)
}
