// Package textx contains tests for the text utilities.
package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "  I built   a caching\n\tlayer  "
	got := CollapseWhitespace(in)
	if got != "I built a caching layer" {
		t.Fatalf("unexpected: %q", got)
	}
}
