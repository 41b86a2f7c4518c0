// Package chunker splits narration text into bounded pieces for the
// speech synthesis API, which rejects requests over a fixed size.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Split breaks text into ordered chunks of at most limit runes each,
// preferring sentence boundaries. A sentence longer than limit is
// force-split at fixed boundaries. Chunks are trimmed of surrounding
// whitespace and empty chunks are dropped, so empty input returns nil.
func Split(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if c := strings.TrimSpace(buf.String()); c != "" {
			chunks = append(chunks, c)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sentence := range sentences(text) {
		n := utf8.RuneCountInString(sentence)

		if n > limit {
			flush()
			for _, piece := range forceSplit(sentence, limit) {
				if c := strings.TrimSpace(piece); c != "" {
					chunks = append(chunks, c)
				}
			}
			continue
		}

		if bufLen+n > limit {
			flush()
		}
		buf.WriteString(sentence)
		bufLen += n
	}
	flush()

	return chunks
}

// sentences splits text into sentence-like units. A unit ends after a run
// of terminal punctuation followed by whitespace or end of input, or at a
// newline. Trailing whitespace stays attached to the unit, so the units
// concatenate back to the original text.
func sentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if isTerminal(c) {
			for i+1 < len(runes) && isTerminal(runes[i+1]) {
				i++
			}
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
					i++
				}
				out = append(out, string(runes[start:i+1]))
				start = i + 1
			}
			continue
		}

		if c == '\n' {
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}

	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminal(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

// forceSplit cuts s into pieces of exactly limit runes (the last piece
// may be shorter).
func forceSplit(s string, limit int) []string {
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
