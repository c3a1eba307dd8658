package textnorm

import "strings"

// punctuation stripped from both reference texts and transcripts so the two
// sides stay comparable.
const punctuation = ".,/#!$%^&*;:{}=-_`~()?\"'"

// Normalize lowercases text, strips punctuation, and splits on whitespace.
// It is applied identically to reference text and transcript; empty input
// yields an empty slice.
func Normalize(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, lowered)
	return strings.Fields(cleaned)
}

// WordCount returns the number of comparable words in text.
func WordCount(text string) int {
	return len(Normalize(text))
}
