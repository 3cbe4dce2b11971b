package sections

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secrag/internal/domain"
)

const tenK = `ACME CORP
Annual report for the fiscal year.

PART I
ITEM 1. BUSINESS
We make widgets for industrial customers around the world.
ITEM 1A. RISK FACTORS
RISK FACTORS
Competition is intense and margins may fall.
PART II
ITEM 7. MANAGEMENT'S DISCUSSION AND ANALYSIS
Net sales increased 8% to $383.3 billion.
`

const withTOC = `ACME CORP FORM 10-K
TABLE OF CONTENTS
[TABLE_START]
Item 1. | Business | 3
Item 1A. | Risk Factors | 10
Item 7. | Management's Discussion and Analysis | 20
[TABLE_END]
[PAGE BREAK]
Business
We make widgets.
Risk Factors
Competition is intense.
Management's Discussion and Analysis
Revenue grew.
`

func assertPartition(t *testing.T, text string, secs []domain.Section) {
	t.Helper()
	require.NotEmpty(t, secs)
	for i, s := range secs {
		assert.Equal(t, text[s.Start:s.End], s.RawText, "section %d raw text", i)
		if i > 0 {
			assert.Greater(t, s.Start, secs[i-1].Start)
			assert.Equal(t, secs[i-1].End, s.Start)
		}
	}
	assert.Equal(t, len(text), secs[len(secs)-1].End)
}

func TestDetectHeaders(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	name, secs := d.DetectWith(tenK)

	assert.Equal(t, "headers", name)
	assertPartition(t, tenK, secs)

	var types []domain.SectionType
	for _, s := range secs {
		types = append(types, s.Type)
	}
	assert.Equal(t, []domain.SectionType{
		domain.SectionIntro,
		domain.SectionPart,
		domain.SectionItem,
		domain.SectionItem,
		domain.SectionPart,
		domain.SectionItem,
	}, types)

	assert.Equal(t, "PART I", secs[1].Part)
	assert.Equal(t, "1A", secs[3].ItemNumber)
	assert.Contains(t, secs[3].RawText, "Competition is intense")
	assert.Equal(t, "PART II", secs[4].Part)
	assert.Equal(t, "7", secs[5].ItemNumber)
}

func TestHeaderTieBreakPrefersExplicitIdentifier(t *testing.T) {
	text := "BUSINESS\nItem 1. Business\n" + strings.Repeat("filler line\n", 10) +
		"PROPERTIES\n" + strings.Repeat("filler line\n", 10) + "ITEM 2. PROPERTIES\nOffices.\n"
	secs := NewHeaderStrategy(DefaultTieBreakWindow).Detect(text)

	var items, named int
	for _, s := range secs {
		switch s.Type {
		case domain.SectionItem:
			items++
		case domain.SectionNamed:
			named++
			assert.Equal(t, "PROPERTIES", s.Title)
		}
	}
	assert.Equal(t, 2, items)
	// The first BUSINESS line lost to "Item 1."; the PROPERTIES line is far
	// enough from ITEM 2 to stand on its own.
	assert.Equal(t, 1, named)
	assertPartition(t, text, secs)
}

func TestHeaderFalsePositives(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"table of contents", "ITEM 1. BUSINESS TABLE OF CONTENTS"},
		{"index", "PART I INDEX"},
		{"financial statement index", "INDEX TO CONSOLIDATED FINANCIAL STATEMENTS"},
		{"table marker", "[TABLE_START] ITEM 1"},
		{"prose", "Item 7 " + strings.Repeat("and so on ", 12)},
		{"too short", "PR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := classify(line{text: tt.line})
			assert.False(t, ok)
		})
	}
}

func TestHeaderMentioningIndex(t *testing.T) {
	tests := []struct {
		name string
		line string
		item string
	}{
		{"exhibit index", "ITEM 15. EXHIBITS AND EXHIBIT INDEX", "15"},
		{"index in title", "Item 9A. Controls and Procedures Indexed", "9A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := classify(line{text: tt.line})
			require.True(t, ok)
			assert.Equal(t, domain.SectionItem, c.Type)
			assert.Equal(t, tt.item, c.ItemNumber)
		})
	}
}

func TestHeadersIgnoreRowsInsideTables(t *testing.T) {
	secs := NewHeaderStrategy(DefaultTieBreakWindow).Detect(withTOC)
	assert.Empty(t, secs)
}

func TestDetectFallsBackToTOC(t *testing.T) {
	name, secs := NewDetector(zerolog.Nop()).DetectWith(withTOC)

	require.Equal(t, "toc", name)
	assertPartition(t, withTOC, secs)
	require.Len(t, secs, 4)
	assert.Equal(t, domain.SectionIntro, secs[0].Type)
	assert.Contains(t, secs[0].RawText, "TABLE OF CONTENTS")
	assert.Equal(t, "1", secs[1].ItemNumber)
	assert.Contains(t, secs[1].RawText, "We make widgets.")
	assert.Equal(t, "1A", secs[2].ItemNumber)
	assert.Equal(t, "7", secs[3].ItemNumber)
	assert.Contains(t, secs[3].RawText, "Revenue grew.")
}

func TestParseTOC(t *testing.T) {
	entries := parseTOC("PART I | Financial Information\nItem 1. | Financial Statements | 3\nPART II\nItem 1A. Risk Factors ..... 40\n")
	assert.Equal(t, []tocEntry{
		{part: "PART I", title: "Financial Information"},
		{part: "PART I", item: "1", title: "Financial Statements"},
		{part: "PART II"},
		{part: "PART II", item: "1A", title: "Risk Factors"},
	}, entries)
}

func TestDetectFallsBackToPages(t *testing.T) {
	text := "first page prose[PAGE BREAK][PAGE BREAK]second page prose[PAGE BREAK]third page prose"
	name, secs := NewDetector(zerolog.Nop()).DetectWith(text)

	require.Equal(t, "pages", name)
	assertPartition(t, text, secs)
	require.Len(t, secs, 3)
	assert.Equal(t, "Page 1", secs[0].Title)
	assert.Equal(t, "Page 3", secs[2].Title)
	assert.Contains(t, secs[1].RawText, "second page prose")
	assert.Equal(t, domain.SectionPage, secs[2].Type)
}

func TestDetectWholeDocument(t *testing.T) {
	for _, text := range []string{"", "just some prose without any structure."} {
		name, secs := NewDetector(zerolog.Nop()).DetectWith(text)
		assert.Equal(t, "document", name)
		require.Len(t, secs, 1)
		assert.Equal(t, domain.SectionDocument, secs[0].Type)
		assert.Equal(t, text, secs[0].RawText)
	}
}

func TestDetectWithoutTerminalStrategy(t *testing.T) {
	d := NewDetector(zerolog.Nop(), NewHeaderStrategy(10))
	secs := d.Detect("ITEM 1. only one header\n")
	require.Len(t, secs, 1)
	assert.Equal(t, domain.SectionDocument, secs[0].Type)
}

func TestIntroSkippedWhenBlank(t *testing.T) {
	text := "\n\n  \nITEM 1. A\nx\nITEM 2. B\ny\nITEM 3. C\nz\n"
	secs := NewHeaderStrategy(DefaultTieBreakWindow).Detect(text)
	require.Len(t, secs, 3)
	assert.Equal(t, domain.SectionItem, secs[0].Type)
}
