package tmstore_test

import (
	"testing"

	"tmcore/internal/tmstore"
)

func TestParsePairCanonicalizes(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"en|fr", "en|fr", true},
		{"en-us|pt-br", "en-US|pt-BR", true},
		{"en", "", false},
		{"|fr", "", false},
	}
	for _, tc := range cases {
		got, err := tmstore.ParsePair(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("%q: unexpected error state %v", tc.in, err)
		}
		if tc.ok && got.String() != tc.want {
			t.Fatalf("%q: got %q want %q", tc.in, got.String(), tc.want)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if tmstore.JobCreated.Terminal() || tmstore.JobPending.Terminal() {
		t.Fatal("created and pending are not terminal")
	}
	if !tmstore.JobDone.Terminal() || !tmstore.JobCancelled.Terminal() {
		t.Fatal("done and cancelled are terminal")
	}
}
