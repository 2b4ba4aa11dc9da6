package models

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ScrubHeaderText makes wire header bytes safe for downstream text
// handling. Invalid UTF-8 goes through a Latin-1 decode first (the common
// legacy case on binary groups); whatever still cannot be represented is
// replaced. Surrogate code points are scrubbed to '?' so the result can be
// stored and serialized anywhere.
func ScrubHeaderText(text string) string {
	if !utf8.ValidString(text) {
		decoder := charmap.ISO8859_1.NewDecoder()
		converted, _, err := transform.String(decoder, text)
		if err != nil {
			converted = strings.ToValidUTF8(text, "�")
		}
		text = converted
	}
	if !hasSurrogate(text) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.Is(unicode.Cs, r) || r == utf8.RuneError {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasSurrogate(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cs, r) || r == utf8.RuneError {
			return true
		}
	}
	return false
}

// DecodeCP437 decodes a legacy code page 437 filename (RAR4 archives
// predating unicode names). Trailing NULs are stripped.
func DecodeCP437(raw []byte) string {
	decoder := charmap.CodePage437.NewDecoder()
	out, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		out = []byte(strings.ToValidUTF8(string(raw), "?"))
	}
	return strings.TrimRight(string(out), "\x00")
}
