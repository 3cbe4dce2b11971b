package sections

import (
	"regexp"
	"strings"

	"secrag/internal/domain"
)

const (
	pageBreakMarker = "[PAGE BREAK]"
	// maxTOCBytes bounds the index block when no page break closes it.
	maxTOCBytes = 6000
)

var (
	tocStartRe = regexp.MustCompile(`(?im)^[\s|]*(?:TABLE OF CONTENTS|INDEX)\b`)
	tocPartRe  = regexp.MustCompile(`(?i)^[\s|]*PART\s+([IVX]+)\b\.?`)
	tocItemRe  = regexp.MustCompile(`(?i)\bITEM\s+(\d{1,2}[A-Z]?)\b\.?`)
	trailingPg = regexp.MustCompile(`[\s|.]*\d*[\s|]*$`)
)

// tocEntry is one row of a table of contents.
type tocEntry struct {
	part  string
	item  string
	title string
}

// TOCStrategy reads the table of contents and re-anchors each entry in the
// body. Entries that cannot be found again are skipped.
type TOCStrategy struct{}

func NewTOCStrategy() *TOCStrategy { return &TOCStrategy{} }

func (*TOCStrategy) Name() string     { return "toc" }
func (*TOCStrategy) MinSections() int { return 3 }

func (t *TOCStrategy) Detect(text string) []domain.Section {
	loc := tocStartRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	blockEnd := len(text)
	if i := strings.Index(text[loc[1]:], pageBreakMarker); i >= 0 {
		blockEnd = loc[1] + i
	}
	if blockEnd-loc[0] > maxTOCBytes {
		blockEnd = loc[0] + maxTOCBytes
	}
	entries := parseTOC(text[loc[1]:blockEnd])
	if len(entries) == 0 {
		return nil
	}

	var heads []domain.Section
	cursor := blockEnd
	for _, e := range entries {
		re := anchorPattern(e)
		if re == nil {
			continue
		}
		m := re.FindStringIndex(text[cursor:])
		if m == nil {
			continue
		}
		start := cursor + m[0]
		heads = append(heads, e.section(start))
		cursor += m[1]
	}
	return build(text, heads)
}

// parseTOC extracts ordered entries from the index block. A row may carry a
// PART and an ITEM at once, e.g. "PART I | Item 1. | Business | 3".
func parseTOC(block string) []tocEntry {
	var (
		out  []tocEntry
		part string
	)
	for _, raw := range strings.Split(block, "\n") {
		l := strings.TrimSpace(raw)
		if l == "" {
			continue
		}
		rest := l
		if m := tocPartRe.FindStringSubmatchIndex(l); m != nil {
			p := "PART " + strings.ToUpper(l[m[2]:m[3]])
			rest = l[m[1]:]
			if p != part {
				part = p
				if !tocItemRe.MatchString(rest) {
					out = append(out, tocEntry{part: p, title: cleanTOCTitle(rest)})
					continue
				}
				out = append(out, tocEntry{part: p})
			}
		}
		if m := tocItemRe.FindStringSubmatchIndex(rest); m != nil {
			out = append(out, tocEntry{
				part:  part,
				item:  strings.ToUpper(rest[m[2]:m[3]]),
				title: cleanTOCTitle(rest[m[1]:]),
			})
		}
	}
	return out
}

func cleanTOCTitle(s string) string {
	s = trailingPg.ReplaceAllString(s, "")
	s = strings.Trim(s, " |.-:\t")
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "|", " ")), " ")
}

// anchorPattern matches the entry's header at a line start in the body.
func anchorPattern(e tocEntry) *regexp.Regexp {
	var alts []string
	switch {
	case e.item != "":
		alts = append(alts, `ITEM\s*`+regexp.QuoteMeta(e.item)+`\b`)
	case e.part != "":
		alts = append(alts, `PART\s*`+regexp.QuoteMeta(strings.TrimPrefix(e.part, "PART "))+`\b`)
	}
	if len(e.title) >= 4 {
		words := strings.Fields(e.title)
		for i := range words {
			words[i] = regexp.QuoteMeta(words[i])
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?im)^[ \t|]*(?:` + strings.Join(alts, "|") + `)`)
}

func (e tocEntry) section(start int) domain.Section {
	s := domain.Section{Title: e.title, Part: e.part, Start: start}
	switch {
	case e.item != "":
		s.Type = domain.SectionItem
		s.ItemNumber = e.item
		s.Title = strings.TrimSpace("Item " + e.item + " " + e.title)
	case e.part != "":
		s.Type = domain.SectionPart
		s.Title = strings.TrimSpace(e.part + " " + e.title)
	default:
		s.Type = domain.SectionNamed
	}
	return s
}
