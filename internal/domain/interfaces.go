package domain

import (
	"fmt"
	"strings"
	"time"
)

// FormType is the kind of periodic report a filing is.
type FormType string

const (
	Form10K FormType = "10K"
	Form10Q FormType = "10Q"
)

// ParseFormType accepts 10K, 10Q, 10-K and 10-Q in any case.
func ParseFormType(s string) (FormType, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "10K":
		return Form10K, nil
	case "10Q":
		return Form10Q, nil
	}
	return "", fmt.Errorf("unsupported form type %q", s)
}

// DateLayout is the layout of filing dates in filenames, ids and metadata.
const DateLayout = "2006-01-02"

// FilingIdentity names one filing. It never changes once derived.
type FilingIdentity struct {
	Ticker     string
	FormType   FormType
	FilingDate time.Time
}

// Key is the `{ticker}_{form}_{date}` prefix shared by every chunk id of the filing.
func (f FilingIdentity) Key() string {
	return fmt.Sprintf("%s_%s_%s", f.Ticker, f.FormType, f.FilingDate.Format(DateLayout))
}

// FiscalContext is the fiscal period a filing reports on.
type FiscalContext struct {
	FiscalYear    int
	FiscalQuarter int
}

// SectionType classifies how a section was found.
type SectionType string

const (
	SectionIntro    SectionType = "intro"
	SectionPart     SectionType = "part"
	SectionItem     SectionType = "item"
	SectionNamed    SectionType = "named"
	SectionPage     SectionType = "page"
	SectionDocument SectionType = "document"
)

// Section is a structurally delimited region of a filing. Start and End are
// byte offsets into the source text; RawText is text[Start:End].
type Section struct {
	Title      string
	Type       SectionType
	RawText    string
	Part       string // "PART I", "PART II", ... or empty
	ItemNumber string // "1", "1A", ... or empty
	Start, End int
}

// ChunkType is narrative or table.
type ChunkType string

const (
	ChunkNarrative ChunkType = "narrative"
	ChunkTable     ChunkType = "table"
)

// Chunk is a bounded, labelled passage of a section prepared for embedding.
type Chunk struct {
	ID         string
	Text       string
	Type       ChunkType
	ItemLabel  string
	TokenCount int
	HasOverlap bool
	Filing     FilingIdentity
	Fiscal     FiscalContext

	// FilingRevenue is set when a revenue figure was extracted from the filing.
	FilingRevenue *float64
}

// Metadata flattens the chunk for the vector index.
func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		Ticker:        c.Filing.Ticker,
		FormType:      string(c.Filing.FormType),
		FilingDate:    c.Filing.FilingDate.Format(DateLayout),
		FiscalYear:    c.Fiscal.FiscalYear,
		FiscalQuarter: c.Fiscal.FiscalQuarter,
		ItemLabel:     c.ItemLabel,
		ChunkType:     string(c.Type),
		TokenCount:    c.TokenCount,
		HasOverlap:    c.HasOverlap,
		Text:          c.Text,
		FilingRevenue: c.FilingRevenue,
	}
}

// Metadata field names shared by every vector store adapter.
const (
	FieldTicker        = "ticker"
	FieldFormType      = "form_type"
	FieldFilingDate    = "filing_date"
	FieldFiscalYear    = "fiscal_year"
	FieldFiscalQuarter = "fiscal_quarter"
	FieldItemLabel     = "item_id"
	FieldChunkType     = "chunk_type"
	FieldTokenCount    = "token_count"
	FieldHasOverlap    = "has_overlap"
	FieldText          = "text"
	FieldFilingRevenue = "filing_revenue"
)

// ChunkMetadata is the flattened chunk stored next to each vector.
type ChunkMetadata struct {
	Ticker        string   `json:"ticker"`
	FormType      string   `json:"form_type"`
	FilingDate    string   `json:"filing_date"`
	FiscalYear    int      `json:"fiscal_year"`
	FiscalQuarter int      `json:"fiscal_quarter"`
	ItemLabel     string   `json:"item_id"`
	ChunkType     string   `json:"chunk_type"`
	TokenCount    int      `json:"token_count"`
	HasOverlap    bool     `json:"has_overlap"`
	Text          string   `json:"text"`
	FilingRevenue *float64 `json:"filing_revenue,omitempty"`
}

// Map renders the metadata as a generic payload.
func (m ChunkMetadata) Map() map[string]any {
	out := map[string]any{
		FieldTicker:        m.Ticker,
		FieldFormType:      m.FormType,
		FieldFilingDate:    m.FilingDate,
		FieldFiscalYear:    m.FiscalYear,
		FieldFiscalQuarter: m.FiscalQuarter,
		FieldItemLabel:     m.ItemLabel,
		FieldChunkType:     m.ChunkType,
		FieldTokenCount:    m.TokenCount,
		FieldHasOverlap:    m.HasOverlap,
		FieldText:          m.Text,
	}
	if m.FilingRevenue != nil {
		out[FieldFilingRevenue] = *m.FilingRevenue
	}
	return out
}

// MetadataFromMap is the inverse of Map. JSON payloads decode numbers as
// float64, so integer fields accept both.
func MetadataFromMap(p map[string]any) ChunkMetadata {
	var m ChunkMetadata
	m.Ticker, _ = p[FieldTicker].(string)
	m.FormType, _ = p[FieldFormType].(string)
	m.FilingDate, _ = p[FieldFilingDate].(string)
	m.FiscalYear = asInt(p[FieldFiscalYear])
	m.FiscalQuarter = asInt(p[FieldFiscalQuarter])
	m.ItemLabel, _ = p[FieldItemLabel].(string)
	m.ChunkType, _ = p[FieldChunkType].(string)
	m.TokenCount = asInt(p[FieldTokenCount])
	m.HasOverlap, _ = p[FieldHasOverlap].(bool)
	m.Text, _ = p[FieldText].(string)
	if v, ok := p[FieldFilingRevenue].(float64); ok {
		m.FilingRevenue = &v
	}
	return m
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// VectorRecord is what gets upserted into the index; ID is the chunk id.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata ChunkMetadata
}

// Match is one ranked row returned by a vector index.
type Match struct {
	ID       string
	Score    float64
	Metadata ChunkMetadata
}

// Filter is a conjunction of exact-match predicates over metadata fields.
// Values are string or int.
type Filter map[string]any

// Matches evaluates the filter against metadata.
func (f Filter) Matches(m ChunkMetadata) bool {
	payload := m.Map()
	for k, want := range f {
		got, ok := payload[k]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case int:
			if asInt(got) != w {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

// Filters are the structured predicates a search may carry. Zero values mean
// "no constraint".
type Filters struct {
	Ticker     string
	FormType   FormType
	FiscalYear int
	ChunkType  ChunkType

	// ItemLabel is a case-insensitive substring of the chunk's item label.
	ItemLabel string
}

// Pushdown returns the predicates the index evaluates natively.
func (f Filters) Pushdown() Filter {
	out := Filter{}
	if f.Ticker != "" {
		out[FieldTicker] = f.Ticker
	}
	if f.FormType != "" {
		out[FieldFormType] = string(f.FormType)
	}
	if f.FiscalYear != 0 {
		out[FieldFiscalYear] = f.FiscalYear
	}
	if f.ChunkType != "" {
		out[FieldChunkType] = string(f.ChunkType)
	}
	return out
}

// HasPostFilter reports whether any predicate must be applied client-side.
func (f Filters) HasPostFilter() bool {
	return f.ItemLabel != ""
}

// Accept applies the client-side predicates.
func (f Filters) Accept(m ChunkMetadata) bool {
	if f.ItemLabel == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.ItemLabel), strings.ToLower(f.ItemLabel))
}

// SearchResult is a matching chunk with its similarity score.
type SearchResult struct {
	ChunkID    string
	Ticker     string
	FormType   string
	FilingDate string
	ItemLabel  string
	ChunkType  string
	Text       string
	Score      float64
	Fiscal     FiscalContext
}

// ResultFromMatch converts an index row into a search result.
func ResultFromMatch(m Match) SearchResult {
	return SearchResult{
		ChunkID:    m.ID,
		Ticker:     m.Metadata.Ticker,
		FormType:   m.Metadata.FormType,
		FilingDate: m.Metadata.FilingDate,
		ItemLabel:  m.Metadata.ItemLabel,
		ChunkType:  m.Metadata.ChunkType,
		Text:       m.Metadata.Text,
		Score:      m.Score,
		Fiscal: FiscalContext{
			FiscalYear:    m.Metadata.FiscalYear,
			FiscalQuarter: m.Metadata.FiscalQuarter,
		},
	}
}
