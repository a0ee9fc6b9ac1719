package utils

import "unicode"

// Rough token estimation for prompt budgeting.
// Latin text averages about 4 characters per token; Hangul and other CJK
// characters usually cost a token each.

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	wide, other := 0, 0
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			other++
		}
	}
	tokens := wide + other/4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text so that CountTokens stays within limit.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if CountTokens(text) <= limit {
		return text
	}
	wide, other := 0, 0
	runes := []rune(text)
	for i, r := range runes {
		if isWide(r) {
			wide++
		} else {
			other++
		}
		if wide+other/4 > limit {
			return string(runes[:i])
		}
	}
	return text
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Hangul, unicode.Han, unicode.Hiragana, unicode.Katakana)
}
