// Package tmsync exposes a translation memory as job-sized blocks so that
// independently evolving stores can exchange TU data.
//
// A Facade wraps one tmstore.Store with an identity, an access mode, and a
// partitioning scheme that maps jobs to block ids. Sync copies changed blocks
// between two facades one language pair at a time.
package tmsync
