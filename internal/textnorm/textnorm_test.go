package textnorm_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/hearken/internal/textnorm"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello world"},
		{"  Euh...   bah  ", "euh bah"},
		{"Écoute ça", "ecoute ca"},
		{"don't stop", "dont stop"},
		{"3 p.m.", "3 p m"},
		{"?!...", ""},
	}
	for _, tc := range tests {
		if got := textnorm.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	got := textnorm.Tokens("Hey, Hearken: what's up?")
	want := []string{"hey", "hearken", "whats", "up"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}
