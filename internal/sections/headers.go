package sections

import (
	"regexp"
	"strings"

	"secrag/internal/domain"
)

// DefaultTieBreakWindow is the distance in bytes within which an explicit
// PART/ITEM header replaces a generic title match.
const DefaultTieBreakWindow = 100

var (
	partHeaderRe = regexp.MustCompile(`(?i)^\s*PART\s+([IVX]+)\b`)
	itemHeaderRe = regexp.MustCompile(`(?i)^\s*ITEM\s+(\d{1,2}[A-Z]?)\b`)
	namedTitleRe = regexp.MustCompile(`^.{0,50}\b(BUSINESS|RISK FACTORS|LEGAL PROCEEDINGS|FINANCIAL STATEMENTS|PROPERTIES|CONTROLS AND PROCEDURES)\s*$|^.{0,50}\b(MANAGEMENT.S DISCUSSION)\b`)
)

// line is one line of the document with its byte offset.
type line struct {
	start int
	text  string
}

func splitLines(text string) []line {
	var out []line
	start := 0
	for start <= len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			out = append(out, line{start: start, text: text[start:]})
			break
		}
		out = append(out, line{start: start, text: text[start : start+end]})
		start += end + 1
	}
	return out
}

// tableSpanRe matches a marked table. Header-looking rows inside tables are
// usually table-of-contents entries.
var tableSpanRe = regexp.MustCompile(`(?s)\[TABLE_START\].*?\[TABLE_END\]`)

func insideSpan(spans [][]int, off int) bool {
	for _, s := range spans {
		if off >= s[0] && off < s[1] {
			return true
		}
	}
	return false
}

// plausibleHeader rejects lines that match a header pattern but are prose,
// table rows or table-of-contents entries.
func plausibleHeader(l string) bool {
	t := strings.TrimSpace(l)
	if len(t) > 400 || len(t) < 3 || strings.Count(t, " ") > 20 {
		return false
	}
	if strings.Contains(t, "[TABLE_START]") || strings.Contains(t, "[TABLE_END]") {
		return false
	}
	if strings.Contains(strings.ToLower(t), "table of contents") {
		return false
	}
	return !indexHeadingRe.MatchString(t)
}

// indexHeadingRe matches index pages such as "PART I INDEX" or "INDEX TO
// CONSOLIDATED FINANCIAL STATEMENTS". "ITEM 15. EXHIBIT INDEX" stays a header.
var indexHeadingRe = regexp.MustCompile(`(?i)^(?:PART\s+[IVX]+\W*)?INDEX\b`)

// HeaderStrategy finds line-anchored PART and ITEM headers plus upper-case
// named section titles.
type HeaderStrategy struct {
	window int
}

func NewHeaderStrategy(tieBreakWindow int) *HeaderStrategy {
	if tieBreakWindow < 0 {
		tieBreakWindow = 0
	}
	return &HeaderStrategy{window: tieBreakWindow}
}

func (h *HeaderStrategy) Name() string     { return "headers" }
func (h *HeaderStrategy) MinSections() int { return 3 }

func (h *HeaderStrategy) Detect(text string) []domain.Section {
	tables := tableSpanRe.FindAllStringIndex(text, -1)
	var candidates []domain.Section
	for _, l := range splitLines(text) {
		if insideSpan(tables, l.start) {
			continue
		}
		c, ok := classify(l)
		if !ok {
			continue
		}
		candidates = h.admit(candidates, c)
	}
	return build(text, candidates)
}

// admit appends c, applying the tie-break rule against the previous
// candidate: inside the window an explicit header displaces a named title,
// and a named title never displaces anything.
func (h *HeaderStrategy) admit(candidates []domain.Section, c domain.Section) []domain.Section {
	if len(candidates) == 0 {
		return append(candidates, c)
	}
	last := &candidates[len(candidates)-1]
	if c.Start-last.Start > h.window {
		return append(candidates, c)
	}
	switch {
	case c.Type == domain.SectionNamed:
		return candidates
	case last.Type == domain.SectionNamed:
		*last = c
		return candidates
	default:
		return append(candidates, c)
	}
}

func classify(l line) (domain.Section, bool) {
	if !plausibleHeader(l.text) {
		return domain.Section{}, false
	}
	title := strings.TrimSpace(l.text)
	if m := partHeaderRe.FindStringSubmatch(l.text); m != nil {
		return domain.Section{
			Title: title,
			Type:  domain.SectionPart,
			Part:  "PART " + strings.ToUpper(m[1]),
			Start: l.start,
		}, true
	}
	if m := itemHeaderRe.FindStringSubmatch(l.text); m != nil {
		return domain.Section{
			Title:      title,
			Type:       domain.SectionItem,
			ItemNumber: strings.ToUpper(m[1]),
			Start:      l.start,
		}, true
	}
	// Named titles are only trusted as all-caps headings.
	if strings.ToUpper(title) == title && namedTitleRe.MatchString(title) {
		return domain.Section{
			Title: title,
			Type:  domain.SectionNamed,
			Start: l.start,
		}, true
	}
	return domain.Section{}, false
}
