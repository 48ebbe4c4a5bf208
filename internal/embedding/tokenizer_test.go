package embedding

import (
	"reflect"
	"testing"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"lowercase", "Hello World", 0, []string{"hello", "world"}},
		{"punctuation", "Hello, world! (again)", 0, []string{"hello", "world", "again"}},
		{"symbols only dropped", "a -- b", 0, []string{"a", "b"}},
		{"limit", "one two three four", 2, []string{"one", "two"}},
		{"empty", "   ", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokens(tt.text, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b  c  ")
	if len(words) != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if len(SplitWords("")) != 0 {
		t.Error("empty string should return no words")
	}
}

func TestHashString(t *testing.T) {
	h := HashString("abc")
	if h == 0 {
		t.Error("hash should be non-zero")
	}
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") == HashString("abd") {
		t.Error("different strings should hash differently")
	}
}
