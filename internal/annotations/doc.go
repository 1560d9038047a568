// Package annotations owns the durable record of registered media files and
// annotation jobs.
//
// Each job carries two stage statuses, transcription and enhancement, that
// only move pending -> processing -> completed|failed. Enhancement cannot leave
// pending until transcription has completed. The guard lives in the UPDATE
// statements (and in a table CHECK), so a late or duplicate transition is
// rejected by the database rather than by caller discipline.
//
// Two backends are provided: SQLite via modernc.org/sqlite for single-host
// deployments, and PostgreSQL via pgxpool. Stage tasks never share a
// connection; each obtains its own Handle through Store.Acquire.
package annotations
