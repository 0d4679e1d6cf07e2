// Package cli implements the club-sync command-line interface.
//
// The cli package provides the Cobra-based commands that operate the ingestion
// pipeline: running the worker once or in a loop, enqueueing refresh jobs,
// serving the HTTP trigger, running the dedup pass, reclaiming abandoned jobs,
// listing the job ledger (text/JSON, sortable) and exporting the event
// calendar. It wires configuration, storage, the reconciliation engine and the
// pipelines together for each invocation.
package cli
