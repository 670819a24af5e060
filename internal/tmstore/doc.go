// Package tmstore persists translation units and the jobs that produced them.
//
// Every language pair gets its own TU table, created lazily on first use and
// keyed by (guid, job_guid). A shared jobs table records job metadata across
// pairs. Each TU row carries a maintained rank: for every guid exactly one row
// has rank 1, the one with the highest quality, then the newest timestamp,
// then the lowest job GUID. Writes recompute rank only for the guids they
// touch, inside a single BEGIN IMMEDIATE transaction, so concurrent batches
// that share guids serialize on the SQLite write lock instead of corrupting
// rank.
package tmstore
