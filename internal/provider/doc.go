// Package provider implements the translation job state machine shared by
// every translation provider.
//
// A job moves created -> pending -> done, or created -> done, and may end
// cancelled when no TU survives filtering. Base enforces the transitions,
// filters TUs by supported language pair and minimum quality, estimates cost,
// and drops results identical to the current best TM entry. Concrete
// providers plug in through the Translator family of interfaces.
package provider
