// Package journal provides SQLite-backed durable records of every
// transaction a deployment broadcasts.
//
// The deployment record file is written once, at the end of a run. The
// journal is written as each transaction lands, so a crash or fatal
// mid-deployment error loses nothing: the next run merges journal rows
// into its cache view and resumes instead of republishing.
//
// Writes are idempotent (INSERT OR IGNORE keyed on transaction id);
// replaying a journal append after a crash is harmless. The database
// runs in WAL mode with a busy timeout, and a single connection, since
// SQLite allows one writer at a time.
package journal
