package textutil

import (
	"unicode"
	"unicode/utf8"
)

// IsHan reports whether r is a Han ideograph.
func IsHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// ContainsHan reports whether text has at least one Han ideograph.
func ContainsHan(text string) bool {
	for _, r := range text {
		if IsHan(r) {
			return true
		}
	}
	return false
}

// RuneLen returns the character count of text.
func RuneLen(text string) int {
	return utf8.RuneCountInString(text)
}

// Runes splits text into single-rune strings.
func Runes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
