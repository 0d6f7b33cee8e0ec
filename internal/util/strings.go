package util

import "strings"

// SafeTruncate safely truncates a string to maxLen bytes without panicking.
// Returns the original string if it's shorter than maxLen, otherwise returns
// the first maxLen bytes. This prevents index out of bounds errors when
// logging caller-supplied data, where only a prefix should be shown.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-reason-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
//	SafeTruncate("test", -1)                   // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// SanitizeLogValue replaces control characters, including newlines, with a
// single space so a caller-supplied string cannot forge additional log lines
// or corrupt structured output.
//
// Example:
//
//	SanitizeLogValue("ok\nINFO forged=line") // Returns: "ok INFO forged=line"
func SanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
