// Package store persists file records and push device tokens in SQLite.
//
// Every pipeline stage owns a disjoint set of file record fields, and the
// store exposes one narrow update method per owner instead of a generic
// update: ApplyCreationResult (url, blurred url, cleanup metadata),
// ApplyModerationVerdict (status) and ApplyTranscription (description).
// The SQL behind each method guards the lifecycle rules, so status leaves
// processing at most once and a description is never replaced.
//
// Writes retry on SQLITE_BUSY; the database runs in WAL mode so readers such
// as the CLI never block the daemon.
package store
