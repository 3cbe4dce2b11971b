package chunker

import (
	"regexp"
	"strings"

	"secrag/internal/tokenizer"
)

// unitMode records how narrative text was split; it decides the separator
// used when units are joined back into a chunk.
type unitMode int

const (
	sentenceMode unitMode = iota
	paragraphMode
)

func (m unitMode) separator() string {
	if m == paragraphMode {
		return "\n"
	}
	return " "
}

type unit struct {
	text   string
	tokens int
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// splitSentences cuts after '.', '!' or '?' when the next byte is
// whitespace, so decimals such as 383.3 stay intact.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if !isSpace(text[i+1]) {
			continue
		}
		out = appendTrimmed(out, text[start:i+1])
		start = i + 1
	}
	return appendTrimmed(out, text[start:])
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphRe.Split(text, -1) {
		out = appendTrimmed(out, p)
	}
	return out
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// semanticUnits splits narrative text into cleaned units. Sentences are
// preferred; when the text has no sentence boundary it falls back to
// paragraphs. Sentences longer than capTokens are split again by paragraph.
func semanticUnits(text string, tok tokenizer.Tokenizer, capTokens int) ([]unit, unitMode) {
	mode := sentenceMode
	raw := splitSentences(text)
	if len(raw) <= 1 {
		mode = paragraphMode
		raw = splitParagraphs(text)
	}

	var units []unit
	add := func(s string) {
		if s = Clean(s); s != "" {
			units = append(units, unit{text: s, tokens: tok.Count(s)})
		}
	}
	for _, s := range raw {
		if mode == sentenceMode && capTokens > 0 && tok.Count(s) > capTokens {
			for _, p := range splitParagraphs(s) {
				add(p)
			}
			continue
		}
		add(s)
	}
	return units, mode
}

func join(units []unit, sep string) string {
	parts := make([]string, len(units))
	for i, u := range units {
		parts[i] = u.text
	}
	return strings.Join(parts, sep)
}
