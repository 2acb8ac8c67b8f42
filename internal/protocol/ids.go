package protocol

import "unicode/utf8"

// MaxIDLength is the wire limit for player identifiers, in bytes.
const MaxIDLength = 5

// TruncateID keeps the left-most MaxIDLength bytes of id. If the cut would
// split a multi-byte rune the partial rune is dropped as well, so the
// result is always valid UTF-8 for valid input.
func TruncateID(id string) string {
	if len(id) <= MaxIDLength {
		return id
	}
	cut := MaxIDLength
	for cut > 0 && !utf8.RuneStart(id[cut]) {
		cut--
	}
	return id[:cut]
}

// trimPartialRune drops a rune left incomplete at the end of an id slot,
// matching the cut TruncateID makes on encode.
func trimPartialRune(id string) string {
	start := len(id)
	for start > 0 && !utf8.RuneStart(id[start-1]) {
		start--
	}
	if start > 0 && !utf8.FullRuneInString(id[start-1:]) {
		return id[:start-1]
	}
	return id
}
