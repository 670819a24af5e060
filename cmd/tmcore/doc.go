// Command tmcore is the command line front end to the translation memory.
//
// It inspects and edits the TU store, manages channel snapshots, moves TM
// blocks between stores, and runs the leverage pipeline over a batch of TUs.
// Every read command accepts --json for machine-readable output; commands
// that write hold a cross-process lock next to the databases.
package main
