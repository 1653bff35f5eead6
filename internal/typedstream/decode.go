// Package typedstream recovers plain text from the archived rich-text
// blobs stored in the Messages database. The format has no published
// grammar; the decoder matches the byte patterns observed in real
// archives and refuses to guess beyond them.
package typedstream

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// stringAnchor precedes every text run seen in the wild.
var stringAnchor = []byte("NSString")

// markerPatterns introduce a length-prefixed text run after the anchor.
// Checked in order; the first pattern that yields a plausible run wins.
var markerPatterns = [][]byte{
	{0x67, 0x01, 0x94, 0x84, 0x01, 0x2b},
	{0x84, 0x01, 0x2b},
	{0x01, 0x94, 0x84, 0x01, 0x2b},
	{0x01, 0x95, 0x84, 0x01, 0x2b},
}

const (
	// maxTextBytes bounds a declared run length; larger values are
	// treated as a misread marker, not a real message.
	maxTextBytes = 10000

	// fallbackWindow limits how far past the anchor the heuristic
	// scan looks when no marker pattern matches.
	fallbackWindow = 100
)

type scanState int

const (
	seekingMarker scanState = iota
	readingLength
	readingText
)

// Decode recovers message text from a rich-text blob. It returns an
// empty string for malformed, empty, or unrecognized input; it never
// fails, so one bad row cannot abort a batch.
func Decode(blob []byte) string {
	if len(blob) == 0 {
		return ""
	}
	anchor := bytes.Index(blob, stringAnchor)
	if anchor < 0 {
		return ""
	}
	for _, marker := range markerPatterns {
		if text, ok := scanFrom(blob, anchor, marker); ok {
			return text
		}
	}
	return fallbackScan(blob, anchor+len(stringAnchor))
}

// scanFrom runs the marker state machine over blob starting at the
// anchor position. All edge cases (marker at end of buffer, declared
// length exceeding the remaining bytes) funnel into the same bounds
// checks here.
func scanFrom(blob []byte, anchor int, marker []byte) (string, bool) {
	state := seekingMarker
	pos := anchor
	length := 0

	for {
		switch state {
		case seekingMarker:
			idx := bytes.Index(blob[pos:], marker)
			if idx < 0 {
				return "", false
			}
			pos += idx + len(marker)
			state = readingLength

		case readingLength:
			n, start, ok := readLength(blob, pos)
			if !ok || n < 1 || n > maxTextBytes || start+n > len(blob) {
				return "", false
			}
			length = n
			pos = start
			state = readingText

		case readingText:
			text := cleanText(recoverUTF8(blob[pos : pos+length]))
			if text == "" {
				return "", false
			}
			return text, true
		}
	}
}

// readLength decodes the length prefix at pos. A byte below 0x80 is the
// byte count itself. Otherwise the low 7 bits give the number of
// little-endian length bytes that follow, then a 0x00 separator sits
// between the length and the text.
func readLength(blob []byte, pos int) (length, textStart int, ok bool) {
	if pos >= len(blob) {
		return 0, 0, false
	}
	b := blob[pos]
	if b < 0x80 {
		return int(b), pos + 1, true
	}
	switch b & 0x7F {
	case 1:
		if pos+2 >= len(blob) {
			return 0, 0, false
		}
		return int(blob[pos+1]), pos + 3, true
	case 2:
		if pos+3 >= len(blob) {
			return 0, 0, false
		}
		return int(blob[pos+1]) | int(blob[pos+2])<<8, pos + 4, true
	default:
		return 0, 0, false
	}
}

// fallbackScan handles blobs whose marker bytes differ from the known
// patterns: it probes each position after the anchor for a single-byte
// length followed by that many bytes of strictly valid UTF-8 that looks
// like message text rather than archive metadata.
func fallbackScan(blob []byte, start int) string {
	end := start + fallbackWindow
	if max := len(blob) - 10; end > max {
		end = max
	}
	for i := start; i < end; i++ {
		length := int(blob[i])
		if length < 2 || length > 200 {
			continue
		}
		textStart := i + 1
		if textStart+length > len(blob) {
			continue
		}
		run := blob[textStart : textStart+length]
		if !utf8.Valid(run) {
			continue
		}
		text := string(run)
		if !looksLikeMessage(text) {
			continue
		}
		if cleaned := cleanText(text); len(cleaned) >= 2 {
			return cleaned
		}
	}
	return ""
}

func looksLikeMessage(text string) bool {
	if strings.HasPrefix(text, "NS") || strings.HasPrefix(text, "__") {
		return false
	}
	for _, r := range text {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return true
		}
	}
	return false
}

// recoverUTF8 replaces invalid sequences instead of failing; a slice
// boundary landing mid-codepoint must not lose the whole message.
func recoverUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

// cleanText keeps runes up to the first control character below 0x20
// (other than \n, \t, \r), cutting off the structural artifacts that
// trail the declared run, then trims surrounding whitespace.
func cleanText(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= 0x20 || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		break
	}
	return strings.TrimSpace(b.String())
}
