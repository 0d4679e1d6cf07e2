// Package jobs implements the refresh job ledger and the orchestrator that
// executes claimed jobs.
//
// A job moves PENDING -> RUNNING -> COMPLETED or FAILED. Claiming is a
// conditional update on the PENDING status, so when several workers race
// for the same job exactly one wins; the rest move on to the next candidate.
// Finalization is conditional on the claim token issued at claim time. A
// worker whose job was reclaimed after its lease expired gets ErrLeaseLost
// instead of overwriting the reclaimed result.
package jobs
