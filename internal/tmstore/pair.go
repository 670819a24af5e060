package tmstore

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Pair is a canonical source/target language pair.
type Pair struct {
	Source string
	Target string
}

// NewPair canonicalizes both BCP 47 tags.
func NewPair(source, target string) (Pair, error) {
	src, err := CanonicalLang(source)
	if err != nil {
		return Pair{}, fmt.Errorf("source language: %w", err)
	}
	tgt, err := CanonicalLang(target)
	if err != nil {
		return Pair{}, fmt.Errorf("target language: %w", err)
	}
	return Pair{Source: src, Target: tgt}, nil
}

// ParsePair parses "src|tgt".
func ParsePair(value string) (Pair, error) {
	source, target, ok := strings.Cut(value, "|")
	if !ok {
		return Pair{}, fmt.Errorf("language pair %q: expected src|tgt", value)
	}
	return NewPair(source, target)
}

// MustPair is NewPair for literals known to be valid.
func MustPair(source, target string) Pair {
	p, err := NewPair(source, target)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pair) String() string { return p.Source + "|" + p.Target }

// table returns the TU table name for the pair.
func (p Pair) table() string {
	return "tus_" + tableToken(p.Source) + "__" + tableToken(p.Target)
}

func tableToken(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tag) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CanonicalLang returns the canonical form of a BCP 47 tag.
func CanonicalLang(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty language tag")
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", value, err)
	}
	return tag.String(), nil
}
