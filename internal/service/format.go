package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FormatName prepares a rider name for alerts: single-letter words are dropped
// and every remaining word is lowercased with an upper-case first letter.
func FormatName(name string) string {
	words := strings.Split(name, " ")
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 1 {
			continue
		}
		w = strings.ToLower(w)
		r, size := utf8.DecodeRuneInString(w)
		out = append(out, string(unicode.ToTitle(r))+w[size:])
	}
	return strings.Join(out, " ")
}
