package nstring_test

import (
	"encoding/json"
	"testing"

	"tmcore/internal/nstring"
)

func TestFlattenUsesTypeOrdinals(t *testing.T) {
	s := nstring.String{
		nstring.Lit("Hello "),
		nstring.PH("bx", "<b>"),
		nstring.Lit("world"),
		nstring.PH("ex", "</b>"),
		nstring.Lit(", you have "),
		nstring.PH("x", "{count}"),
		nstring.Lit(" of "),
		nstring.PH("x", "{total}"),
	}
	got := nstring.Flatten(s)
	want := "Hello {{bx1}}world{{ex1}}, you have {{x1}} of {{x2}}"
	if got != want {
		t.Fatalf("Flatten = %q, want %q", got, want)
	}
}

func TestFlattenIgnoresPlaceholderValues(t *testing.T) {
	a := nstring.String{nstring.Lit("Hi "), nstring.PH("x", "{name}")}
	b := nstring.String{nstring.Lit("Hi "), nstring.PH("x", "%s")}
	if nstring.Flatten(a) != nstring.Flatten(b) {
		t.Fatalf("expected equal flattening, got %q vs %q", nstring.Flatten(a), nstring.Flatten(b))
	}
}

func TestFlattenDeterministicForEqualStrings(t *testing.T) {
	a := nstring.String{nstring.Lit("Save "), nstring.Lit("changes"), nstring.PH("x", "!")}
	b := nstring.String{nstring.Lit("Save changes"), nstring.Lit(""), nstring.PH("x", "!")}
	if !nstring.Equal(a, b) {
		t.Fatal("expected strings to be equal after normalization")
	}
	if nstring.Flatten(a) != nstring.Flatten(b) {
		t.Fatalf("equal strings flattened differently: %q vs %q", nstring.Flatten(a), nstring.Flatten(b))
	}
	if nstring.Flatten(nil) != "" {
		t.Fatal("expected empty flattening for nil string")
	}
}

func TestFlattenEscapesLiteralBraces(t *testing.T) {
	literal := nstring.FromText("Hi {{x1}}")
	placeholder := nstring.String{nstring.Lit("Hi "), nstring.PH("x", "%s")}
	if nstring.Flatten(literal) == nstring.Flatten(placeholder) {
		t.Fatalf("literal braces flattened like a placeholder: %q", nstring.Flatten(literal))
	}
	if got, want := nstring.Flatten(literal), `Hi \{\{x1}}`; got != want {
		t.Fatalf("Flatten = %q, want %q", got, want)
	}
	escaped := nstring.FromText(`a\{b`)
	braced := nstring.FromText(`a{b`)
	if nstring.Flatten(escaped) == nstring.Flatten(braced) {
		t.Fatalf("backslash and brace collided: %q", nstring.Flatten(escaped))
	}
}

func TestJSONRoundTripPreservesPlaceholders(t *testing.T) {
	s := nstring.String{nstring.Lit("Click "), nstring.PH("x", "{link}")}
	encoded, err := nstring.Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if encoded != `["Click ",{"t":"x","v":"{link}"}]` {
		t.Fatalf("unexpected wire form %s", encoded)
	}
	decoded, err := nstring.Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !nstring.Equal(s, decoded) {
		t.Fatalf("decoded %#v differs from %#v", decoded, s)
	}
}

func TestParseRejectsUntypedPlaceholder(t *testing.T) {
	var part nstring.Part
	if err := json.Unmarshal([]byte(`{"v":"x"}`), &part); err == nil {
		t.Fatal("expected error for placeholder without type")
	}
	if s, err := nstring.Parse(""); err != nil || s != nil {
		t.Fatalf("expected nil string for empty input, got %#v %v", s, err)
	}
}

func TestCompatibleComparesPlaceholderMultiset(t *testing.T) {
	req := nstring.String{nstring.PH("x", "{a}"), nstring.Lit(" and "), nstring.PH("x", "{b}")}
	reordered := nstring.String{nstring.PH("x", "{b}"), nstring.Lit(" et "), nstring.PH("x", "{a}")}
	missing := nstring.String{nstring.PH("x", "{a}"), nstring.Lit(" et ")}
	if !nstring.Compatible(req, reordered) {
		t.Fatal("expected reordered placeholders to be compatible")
	}
	if nstring.Compatible(req, missing) {
		t.Fatal("expected missing placeholder to be incompatible")
	}
}

func TestCounts(t *testing.T) {
	s := nstring.String{nstring.Lit("two words "), nstring.PH("x", "{n}"), nstring.Lit(" más")}
	if got := nstring.WordCount(s); got != 3 {
		t.Fatalf("WordCount = %d, want 3", got)
	}
	if got := nstring.CharCount(s); got != 14 {
		t.Fatalf("CharCount = %d, want 14", got)
	}
}
