package nstring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Part is one element of a normalized string. A Part with an empty Type is a
// literal text run; otherwise it is a placeholder.
type Part struct {
	Text  string
	Type  string
	Value string
}

// String is an ordered sequence of parts.
type String []Part

// Lit returns a literal part.
func Lit(text string) Part { return Part{Text: text} }

// PH returns a placeholder part of the given type carrying the raw value.
func PH(typ, value string) Part { return Part{Type: typ, Value: value} }

// FromText wraps plain text in a normalized string.
func FromText(text string) String {
	if text == "" {
		return String{}
	}
	return String{Lit(text)}
}

// IsPlaceholder reports whether the part is a placeholder token.
func (p Part) IsPlaceholder() bool { return p.Type != "" }

type placeholderJSON struct {
	T string `json:"t"`
	V string `json:"v,omitempty"`
}

// MarshalJSON encodes literal parts as JSON strings and placeholders as
// {"t": type, "v": value} objects.
func (p Part) MarshalJSON() ([]byte, error) {
	if !p.IsPlaceholder() {
		return json.Marshal(p.Text)
	}
	return json.Marshal(placeholderJSON{T: p.Type, V: p.Value})
}

// UnmarshalJSON accepts either wire form produced by MarshalJSON.
func (p *Part) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty normalized string part")
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*p = Part{Text: text}
		return nil
	}
	var ph placeholderJSON
	if err := json.Unmarshal(trimmed, &ph); err != nil {
		return fmt.Errorf("decode placeholder: %w", err)
	}
	if ph.T == "" {
		return errors.New("placeholder missing type tag")
	}
	*p = Part{Type: ph.T, Value: ph.V}
	return nil
}

// Parse decodes the persisted JSON form. An empty input yields a nil string.
func Parse(raw string) (String, error) {
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return nil, nil
	}
	var s String
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse normalized string: %w", err)
	}
	return s, nil
}

// Encode returns the persisted JSON form.
func Encode(s String) (string, error) {
	if s == nil {
		return "", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode normalized string: %w", err)
	}
	return string(data), nil
}

// Normalize merges adjacent literal runs and drops empty literals.
func Normalize(s String) String {
	out := make(String, 0, len(s))
	for _, part := range s {
		if !part.IsPlaceholder() {
			if part.Text == "" {
				continue
			}
			if n := len(out); n > 0 && !out[n-1].IsPlaceholder() {
				out[n-1].Text += part.Text
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

// literalEscaper keeps literal braces from reading as placeholder markers.
var literalEscaper = strings.NewReplacer(`\`, `\\`, `{`, `\{`)

// Flatten maps each placeholder to "{{<type><ordinal>}}" and concatenates the
// result with the literal text. Ordinals count placeholders of the same type,
// starting at 1. Literal "{" and "\" are backslash-escaped, so a literal
// "{{x1}}" never flattens like a placeholder.
func Flatten(s String) string {
	var b strings.Builder
	ordinals := make(map[string]int, 2)
	for _, part := range s {
		if !part.IsPlaceholder() {
			literalEscaper.WriteString(&b, part.Text)
			continue
		}
		ordinals[part.Type]++
		b.WriteString("{{")
		b.WriteString(part.Type)
		b.WriteString(strconv.Itoa(ordinals[part.Type]))
		b.WriteString("}}")
	}
	return b.String()
}

// Text returns only the literal text of s.
func Text(s String) string {
	var b strings.Builder
	for _, part := range s {
		if !part.IsPlaceholder() {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Equal reports element-wise equality after normalization.
func Equal(a, b String) bool {
	a, b = Normalize(a), Normalize(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
