package segment

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period without ending a sentence. Keys are
// lowercased with the trailing period stripped.
var abbreviations = map[string]bool{
	"u.s": true, "u.k": true, "u.s.a": true, "e.g": true, "i.e": true,
	"inc": true, "corp": true, "co": true, "ltd": true, "llc": true,
	"no": true, "nos": true, "vs": true, "v": true, "etc": true,
	"mr": true, "mrs": true, "ms": true, "dr": true, "jr": true, "sr": true,
	"st": true, "dept": true, "approx": true, "est": true, "fig": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true,
}

// SplitSentences breaks text at sentence-ending punctuation using
// abbreviation-aware boundary detection. A period ends a sentence only when
// it is followed by whitespace and an upper-case letter or digit, and the
// word before it is neither a known abbreviation nor a single initial.
func SplitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if !boundaryFollows(runes, i) {
			continue
		}
		if r == '.' && isAbbreviation(runes, i) {
			continue
		}

		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			out = append(out, s)
		}
		start = i + 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// boundaryFollows checks the right context: whitespace, then an upper-case
// letter, a digit, an opening quote, or end of text.
func boundaryFollows(runes []rune, i int) bool {
	j := i + 1
	// Closing quotes ride along with the sentence.
	for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
		j++
	}
	if j >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[j]) {
		return false
	}
	for j < len(runes) && unicode.IsSpace(runes[j]) {
		j++
	}
	if j >= len(runes) {
		return true
	}
	r := runes[j]
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '"' || r == '(' || r == '$'
}

// isAbbreviation checks the left context of a period: the dotted word it
// terminates ("U.S", "Inc", a single initial).
func isAbbreviation(runes []rune, i int) bool {
	j := i - 1
	for j >= 0 && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == '&') {
		j--
	}
	word := strings.ToLower(string(runes[j+1 : i]))
	if word == "" {
		return false
	}
	if abbreviations[word] {
		return true
	}
	// Single-letter initials: "George W. Bush".
	if len(word) == 1 && unicode.IsLetter(runes[i-1]) {
		return true
	}
	return false
}

// wordCount tokenizes on whitespace; counts are computed after cleaning, so
// this matches what the downstream consumer sees.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
