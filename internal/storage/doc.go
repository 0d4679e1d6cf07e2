// Package storage persists the canonical club and event store, the category
// vocabulary, entity-category associations and the job ledger through GORM.
//
// SQLite is the default backend. The database file is opened with a busy
// timeout and a single open connection, so writers from one process queue up
// instead of failing with SQLITE_BUSY. MySQL can be selected for deployments
// that share one store between several hosts.
package storage
