// Package nstring models normalized strings: ordered sequences of literal text
// runs and placeholder tokens produced by format-specific parsers.
//
// Flatten reduces a normalized string to a plain string that is used as the
// exact-match key in the translation memory. Placeholders flatten to a marker
// built from their type tag and per-type ordinal, so two strings with the same
// text and the same placeholder layout always flatten identically regardless of
// the raw placeholder values.
package nstring
