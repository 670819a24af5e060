// Package sqlitedb holds the SQLite plumbing shared by the translation memory
// and snapshot stores: connection setup with WAL and immediate transactions,
// busy-retry loops, embedded migrations, transaction helpers, and health
// probes.
package sqlitedb
