// Package leverage implements providers that satisfy translation requests by
// reuse instead of new work.
//
// Grandfather reuses the translation a segment had in the last translated
// version of its resource. Repetition reuses exact source matches from the
// TM, adjusting quality with penalties for identity, notes and group
// mismatches, and can hold back repeated sources inside a batch so that only
// one member of each repetition group is sent for translation.
//
// Pipeline runs leverage providers in order over a batch and commits what they
// resolve to the TM, returning the TUs that still need a real provider.
package leverage
