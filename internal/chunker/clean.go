package chunker

import (
	"regexp"
	"strings"
)

// In-band markers produced by the text extraction stage.
const (
	TableStart = "[TABLE_START]"
	TableEnd   = "[TABLE_END]"
	PageBreak  = "[PAGE BREAK]"
)

var (
	markerReplacer = strings.NewReplacer(TableStart, "", TableEnd, "", PageBreak, "")
	blankLinesRe   = regexp.MustCompile(`\n\s*\n`)
	spacesRe       = regexp.MustCompile(`[ \t]+`)
	lineEdgeRe     = regexp.MustCompile(` ?\n ?`)
)

// Clean removes markers and normalises whitespace: runs of blank lines
// become one newline and runs of spaces or tabs become one space.
func Clean(text string) string {
	text = markerReplacer.Replace(text)
	text = spacesRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n")
	text = lineEdgeRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
