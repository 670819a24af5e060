package nstring

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholders returns the placeholder parts of s in order.
func Placeholders(s String) []Part {
	var out []Part
	for _, part := range s {
		if part.IsPlaceholder() {
			out = append(out, part)
		}
	}
	return out
}

// Signature returns the sorted multiset of "type:value" tokens for the
// placeholders in s. Two strings with equal signatures carry the same
// placeholders, possibly in a different order.
func Signature(s String) []string {
	phs := Placeholders(s)
	sig := make([]string, 0, len(phs))
	for _, ph := range phs {
		sig = append(sig, ph.Type+":"+ph.Value)
	}
	slices.Sort(sig)
	return sig
}

// Compatible reports whether a translation carrying b's placeholders can stand
// in for a request whose source is a.
func Compatible(a, b String) bool {
	return slices.Equal(Signature(a), Signature(b))
}

// WordCount counts whitespace separated words in the literal text.
func WordCount(s String) int {
	return len(strings.FieldsFunc(Text(s), unicode.IsSpace))
}

// CharCount counts runes in the literal text.
func CharCount(s String) int {
	return utf8.RuneCountInString(Text(s))
}
