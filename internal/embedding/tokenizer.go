package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// Tokens returns the lowercased words of text with surrounding punctuation removed, at most
// maxTokens of them (maxTokens <= 0 means no limit).
func Tokens(text string, maxTokens int) []string {
	words := SplitWords(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if w == "" {
			continue
		}
		out = append(out, w)
		if maxTokens > 0 && len(out) == maxTokens {
			break
		}
	}
	return out
}

// HashString returns a deterministic 64-bit FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
