// Package entity defines the canonical records managed by the ingestion pipeline.
//
// Clubs and events are the two kinds of canonical entity. Each carries a natural key
// derived from its business identity (the club name, or an event's title and start time)
// so that repeated imports of the same source upsert instead of duplicating. Categories
// form a small canonical vocabulary joined to entities through associations, and jobs
// record refresh runs in the ledger.
package entity
