package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/club-sync/internal/config"
)

const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitJobFailed = 2
)

// exitError carries a specific process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "club-sync",
		Short: "Ingest campus clubs and events into a canonical store",
		Long: `club-sync ingests student organization rosters and campus event listings,
reconciles them against a canonical store and tracks every refresh as a job.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Define flags
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ./club-sync.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(
		newWorkerCmd(opts),
		newEnqueueCmd(opts),
		newServeCmd(opts),
		newDedupCmd(opts),
		newReclaimCmd(opts),
		newJobsCmd(opts),
		newExportICSCmd(opts),
	)
	return cmd
}

// open loads settings and builds the app for one command run
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	settings, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return newApp(settings, o.verbose, cmd.ErrOrStderr())
}

// signalContext is canceled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Run executes the CLI with args and returns the process exit code
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitError
}

// Execute runs the CLI
func Execute() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}
