// Package snapstore records point-in-time snapshots of channel content.
//
// Resource and segment rows are versioned by a validity interval
// [valid_from, valid_to); the open version of a key has no valid_to. Saving a
// snapshot hashes each incoming row and only closes and reopens versions whose
// content changed, so repeated saves of identical content write nothing but
// the table-of-contents entry. The TOC row is written in the same transaction
// as the delta.
package snapstore
