package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/club-sync/internal/calendar"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/httpapi"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

func newWorkerCmd(root *rootOptions) *cobra.Command {
	var (
		loop     bool
		interval time.Duration
		format   string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim and run the oldest pending job",
		Long: `Reclaims jobs whose lease expired, then claims and runs the oldest pending job.
With --loop it keeps polling until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if loop {
				if interval <= 0 {
					interval = a.settings.Worker.Interval
				}
				return a.orchestrator.Loop(ctx, interval)
			}

			job, err := a.orchestrator.Tick(ctx)
			if err != nil {
				return err
			}
			if job == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending jobs.")
				return nil
			}
			if err := WriteJob(cmd.OutOrStdout(), job, outFormat); err != nil {
				return err
			}
			if job.Status == entity.JobFailed {
				return &exitError{code: ExitJobFailed}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "Keep polling for jobs until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Idle poll interval with --loop (default worker.interval)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newEnqueueCmd(root *rootOptions) *cobra.Command {
	var run bool
	cmd := &cobra.Command{
		Use:       "enqueue <clubs|events>",
		Short:     "Record a pending refresh job",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"clubs", "events"},
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, err := jobs.ParseType(args[0])
			if err != nil {
				return err
			}
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			job, err := a.ledger().Enqueue(ctx, jobType)
			if err != nil {
				return err
			}
			if !run {
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %d (%s)\n", job.ID, job.Type)
				return nil
			}

			job, err = a.orchestrator.RunJob(ctx, job.ID)
			if err != nil {
				return err
			}
			if err := WriteJob(cmd.OutOrStdout(), job, FormatText); err != nil {
				return err
			}
			if job.Status == entity.JobFailed {
				return &exitError{code: ExitJobFailed}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "Run the job immediately instead of leaving it for a worker")
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr         string
		withWorker   bool
		workInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingestion trigger endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.settings.Server.Addr
			}
			if a.settings.Server.IngestSecret == "" {
				logger.Warn("No ingest secret configured; ingestion requests will be rejected", nil)
			}
			srv := httpapi.New(httpapi.Options{
				Addr:         addr,
				IngestSecret: a.settings.Server.IngestSecret,
				Orchestrator: a.orchestrator,
				Store:        a.store,
				Metrics:      a.metrics,
				Calendar:     calendarOptions(a),
			})

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.settings.Server.ShutdownTimeout)
				defer cancel()
				logger.Info("Shutting down HTTP server", nil)
				return srv.Shutdown(shutdownCtx)
			})
			if withWorker {
				if workInterval <= 0 {
					workInterval = a.settings.Worker.Interval
				}
				g.Go(func() error {
					return a.orchestrator.Loop(gctx, workInterval)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "Also run a background worker loop")
	cmd.Flags().DurationVar(&workInterval, "interval", 0, "Worker idle poll interval (default worker.interval)")
	return cmd
}

func newDedupCmd(root *rootOptions) *cobra.Command {
	var (
		policy string
		format string
	)
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Find and merge duplicate clubs and events",
		Long: `Groups clubs and events whose loose keys collide and finds clubs whose names
now classify as fragments. The merge policy folds duplicates into one survivor;
the report policy only lists what merge would do.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if policy == "" {
				policy = a.settings.Reconcile.DedupPolicy
			}
			p, err := reconcile.ParsePolicy(policy)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			report, err := a.engine.Dedup(ctx, reconcile.DedupOptions{Policy: p})
			if err != nil {
				return err
			}
			return WriteDedupReport(cmd.OutOrStdout(), report, outFormat)
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "merge or report (default reconcile.dedup_policy)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newReclaimCmd(root *rootOptions) *cobra.Command {
	var lease time.Duration
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Fail running jobs whose lease has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if lease <= 0 {
				lease = a.settings.Worker.LeaseTimeout
			}
			n, err := a.ledger().ReclaimStale(cmd.Context(), lease)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d stale job(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&lease, "lease", 0, "Lease timeout (default worker.lease_timeout)")
	return cmd
}

func newJobsCmd(root *rootOptions) *cobra.Command {
	var (
		format  string
		limit   int
		status  string
		jobType string
		sortBy  string
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			order := SortOrder(strings.ToLower(sortBy))
			if !order.valid() {
				return fmt.Errorf("invalid sort order: %s (must be 'created', 'type' or 'status')", sortBy)
			}

			filter := storage.JobFilter{Limit: limit}
			if status != "" {
				filter.Status = entity.JobStatus(strings.ToUpper(status))
			}
			if jobType != "" {
				t, err := jobs.ParseType(jobType)
				if err != nil {
					return err
				}
				filter.Type = t
			}

			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.ledger().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			sortJobs(list, order)
			return WriteJobs(cmd.OutOrStdout(), list, outFormat)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs (0 for all)")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs with this status")
	cmd.Flags().StringVar(&jobType, "type", "", "Only jobs of this type (clubs or events)")
	cmd.Flags().StringVar(&sortBy, "sort", string(SortByCreated), "Sort by: created, type or status")
	return cmd
}

func newExportICSCmd(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-ics",
		Short: "Write approved, dated events as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.store.ListEvents(cmd.Context(), storage.EventFilter{Status: entity.StatusApproved})
			if err != nil {
				return err
			}
			ics := calendar.GenerateICS(events, calendarOptions(a), time.Now())

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), ics)
				return err
			}
			if err := os.WriteFile(output, []byte(ics), 0o644); err != nil {
				return fmt.Errorf("writing calendar: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote calendar to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func calendarOptions(a *app) calendar.Options {
	return calendar.Options{
		Name:     a.settings.Calendar.Name,
		Domain:   a.settings.Calendar.Domain,
		Duration: a.settings.Calendar.Duration,
	}
}

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}
