package utils

import (
	"strings"
	"unicode"
)

// ReplacementChar stands in for byte sequences that are not valid UTF-8.
const ReplacementChar = "\uFFFD"

// Sanitize normalizes arbitrary text into storable UTF-8: NUL bytes are
// dropped, remaining ASCII control characters become spaces, whitespace runs
// collapse to one space, and invalid encodings are replaced rather than
// rejected. An empty result means the input had no content.
//
// Sanitize is idempotent.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToValidUTF8(text, ReplacementChar)
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.Map(func(r rune) rune {
		if isControl(r) {
			return ' '
		}
		return r
	}, text)

	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// SanitizeBytes is Sanitize for raw input that may not be UTF-8 at all.
func SanitizeBytes(b []byte) string {
	return Sanitize(string(b))
}

// isControl matches 0x00-0x08, 0x0B-0x0C, 0x0E-0x1F and 0x7F. Tab, LF and CR
// are left to the whitespace pass.
func isControl(r rune) bool {
	switch {
	case r <= 0x08:
		return true
	case r == 0x0B || r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	}
	return false
}

// StripUnsafe repairs invalid encodings, drops NUL bytes and turns the other
// control characters into spaces. Tab, LF, CR and runs of whitespace are
// kept. Model replies go through this instead of Sanitize so their line
// structure survives.
func StripUnsafe(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x00:
			return -1
		case isControl(r):
			return ' '
		}
		return r
	}, strings.ToValidUTF8(text, ReplacementChar))
}
