package naming

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MeaningfulTokens returns up to max tokens of the filename base that are not
// stopwords, bare numbers or shorter than three characters.
func MeaningfulTokens(filename string, stopwords []string, max int) []string {
	stop := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	fields := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, max)
	for _, field := range fields {
		if len(tokens) == max {
			break
		}
		lower := strings.ToLower(field)
		if len(lower) < 3 || isDigits(lower) {
			continue
		}
		if _, ok := stop[lower]; ok {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
