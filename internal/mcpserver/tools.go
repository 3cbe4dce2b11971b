// Package mcpserver exposes filing search and the financial calculators as
// MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"secrag/internal/domain"
	"secrag/internal/finance"
	"secrag/internal/summarizer"
)

const (
	previewChars      = 500
	riskChars         = 1000
	compareChars      = 800
	overviewSentences = 8
)

// Tools binds tool handlers to a searcher and a calculator.
type Tools struct {
	search     finance.Searcher
	calc       *finance.Calculator
	summarizer *summarizer.Frequency
	log        zerolog.Logger
}

func NewTools(s finance.Searcher, calc *finance.Calculator, sum *summarizer.Frequency, log zerolog.Logger) *Tools {
	return &Tools{
		search:     s,
		calc:       calc,
		summarizer: sum,
		log:        log.With().Str("component", "mcp").Logger(),
	}
}

// NewServer creates an MCP server with every tool registered.
func NewServer(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "secrag", Version: version}, nil)
	t.Register(server)
	return server
}

// Run serves the tools on stdin/stdout until ctx is done.
func Run(ctx context.Context, t *Tools, version string) error {
	return NewServer(t, version).Run(ctx, &mcp.StdioTransport{})
}

// Register adds the tools to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_sec_filings",
		Description: "Search SEC 10-K and 10-Q filings semantically, optionally filtered by ticker, form type, fiscal year, section and content type.",
	}, t.SearchFilings)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_company_overview",
		Description: "Summarize a company's business from the Business section of its 10-K filings.",
	}, t.CompanyOverview)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_risk_factors",
		Description: "Return the most relevant passages from a company's Risk Factors sections.",
	}, t.RiskFactors)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "compare_companies",
		Description: "Compare two companies on a topic using passages from their filings.",
	}, t.CompareCompanies)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate_net_profit_margin",
		Description: "Calculate net profit margin (net income / revenue) from a company's 10-K financial statements.",
	}, t.NetProfitMargin)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate_pe_ratio",
		Description: "Calculate the P/E ratio from a given share price and the EPS reported in a company's 10-K.",
	}, t.PERatio)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate_rule_of_40_fcf",
		Description: "Calculate the Rule of 40 score (revenue growth % + free cash flow margin %) from two years of 10-K figures.",
	}, t.RuleOf40)
}

type SearchInput struct {
	Query       string `json:"query" jsonschema:"Natural language search query"`
	TopK        int    `json:"top_k,omitempty" jsonschema:"Number of results to return (optional, defaults to 5)"`
	Ticker      string `json:"ticker,omitempty" jsonschema:"Filter by company ticker, e.g. AAPL"`
	FormType    string `json:"form_type,omitempty" jsonschema:"Filter by form type: 10K or 10Q"`
	ItemSection string `json:"item_section,omitempty" jsonschema:"Filter by section name, e.g. Risk Factors"`
	FiscalYear  int    `json:"fiscal_year,omitempty" jsonschema:"Filter by fiscal year"`
	ChunkType   string `json:"chunk_type,omitempty" jsonschema:"Filter by content type: narrative or table"`
}

type SearchHit struct {
	ChunkID     string  `json:"chunk_id"`
	Company     string  `json:"company"`
	FormType    string  `json:"form_type"`
	FilingDate  string  `json:"filing_date"`
	Section     string  `json:"section"`
	ContentType string  `json:"content_type"`
	Score       float64 `json:"relevance_score"`
	FiscalYear  int     `json:"fiscal_year"`
	TextPreview string  `json:"text_preview"`
}

type SearchOutput struct {
	Query        string      `json:"query"`
	TotalResults int         `json:"total_results"`
	Results      []SearchHit `json:"results"`
}

func (t *Tools) SearchFilings(ctx context.Context, req *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}
	f := domain.Filters{
		Ticker:     normTicker(in.Ticker),
		FiscalYear: in.FiscalYear,
		ItemLabel:  strings.TrimSpace(in.ItemSection),
	}
	if in.FormType != "" {
		form, err := domain.ParseFormType(in.FormType)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		f.FormType = form
	}
	switch ct := domain.ChunkType(strings.ToLower(in.ChunkType)); ct {
	case "":
	case domain.ChunkNarrative, domain.ChunkTable:
		f.ChunkType = ct
	default:
		return nil, SearchOutput{}, fmt.Errorf("unsupported chunk type %q", in.ChunkType)
	}

	results, err := t.search.Search(ctx, in.Query, in.TopK, f)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	out := SearchOutput{Query: in.Query, TotalResults: len(results), Results: make([]SearchHit, len(results))}
	for i, r := range results {
		out.Results[i] = SearchHit{
			ChunkID:     r.ChunkID,
			Company:     r.Ticker,
			FormType:    r.FormType,
			FilingDate:  r.FilingDate,
			Section:     r.ItemLabel,
			ContentType: r.ChunkType,
			Score:       round4(r.Score),
			FiscalYear:  r.Fiscal.FiscalYear,
			TextPreview: Truncate(r.Text, previewChars),
		}
	}
	return nil, out, nil
}

type CompanyInput struct {
	Ticker     string `json:"ticker" jsonschema:"Company ticker symbol"`
	FiscalYear int    `json:"fiscal_year,omitempty" jsonschema:"Specific fiscal year (optional)"`
}

type OverviewOutput struct {
	Ticker       string   `json:"ticker"`
	FiscalYear   int      `json:"fiscal_year,omitempty"`
	Overview     string   `json:"business_overview,omitempty"`
	SourceChunks []string `json:"source_chunks,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func (t *Tools) CompanyOverview(ctx context.Context, req *mcp.CallToolRequest, in CompanyInput) (*mcp.CallToolResult, OverviewOutput, error) {
	ticker := normTicker(in.Ticker)
	if ticker == "" {
		return nil, OverviewOutput{}, errors.New("ticker is required")
	}
	results, err := t.search.Search(ctx, "business overview operations products services", 3, domain.Filters{
		Ticker:     ticker,
		FormType:   domain.Form10K,
		FiscalYear: in.FiscalYear,
		ItemLabel:  "Business",
	})
	if err != nil {
		return nil, OverviewOutput{}, err
	}
	out := OverviewOutput{Ticker: ticker, FiscalYear: in.FiscalYear}
	if len(results) == 0 {
		out.Error = "No business information found for " + ticker
		return nil, out, nil
	}
	var text strings.Builder
	for _, r := range results {
		text.WriteString(r.Text)
		text.WriteString("\n\n")
		out.SourceChunks = append(out.SourceChunks, r.ChunkID)
	}
	out.Overview = t.summarizer.Summarize(text.String(), overviewSentences)
	return nil, out, nil
}

type Passage struct {
	Section    string  `json:"section,omitempty"`
	FormType   string  `json:"form_type"`
	FilingDate string  `json:"filing_date"`
	Text       string  `json:"text"`
	Score      float64 `json:"relevance_score"`
}

type RiskOutput struct {
	Ticker      string    `json:"ticker"`
	FiscalYear  int       `json:"fiscal_year,omitempty"`
	RiskFactors []Passage `json:"risk_factors,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func (t *Tools) RiskFactors(ctx context.Context, req *mcp.CallToolRequest, in CompanyInput) (*mcp.CallToolResult, RiskOutput, error) {
	ticker := normTicker(in.Ticker)
	if ticker == "" {
		return nil, RiskOutput{}, errors.New("ticker is required")
	}
	results, err := t.search.Search(ctx, "risk factors risks uncertainties challenges", 5, domain.Filters{
		Ticker:     ticker,
		FiscalYear: in.FiscalYear,
		ItemLabel:  "Risk Factors",
	})
	if err != nil {
		return nil, RiskOutput{}, err
	}
	out := RiskOutput{Ticker: ticker, FiscalYear: in.FiscalYear}
	if len(results) == 0 {
		out.Error = "No risk factors found for " + ticker
		return nil, out, nil
	}
	for _, r := range results {
		out.RiskFactors = append(out.RiskFactors, passage(r, riskChars, false))
	}
	return nil, out, nil
}

type CompareInput struct {
	Ticker1    string `json:"ticker1" jsonschema:"First company ticker"`
	Ticker2    string `json:"ticker2" jsonschema:"Second company ticker"`
	Topic      string `json:"topic" jsonschema:"Topic to compare, e.g. revenue, competition or strategy"`
	FiscalYear int    `json:"fiscal_year,omitempty" jsonschema:"Specific fiscal year (optional)"`
}

type CompanyPassages struct {
	Ticker   string    `json:"ticker"`
	Sections []Passage `json:"relevant_sections,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type CompareOutput struct {
	Topic      string          `json:"comparison_topic"`
	FiscalYear int             `json:"fiscal_year,omitempty"`
	Company1   CompanyPassages `json:"company_1"`
	Company2   CompanyPassages `json:"company_2"`
}

func (t *Tools) CompareCompanies(ctx context.Context, req *mcp.CallToolRequest, in CompareInput) (*mcp.CallToolResult, CompareOutput, error) {
	a, b := normTicker(in.Ticker1), normTicker(in.Ticker2)
	if a == "" || b == "" || strings.TrimSpace(in.Topic) == "" {
		return nil, CompareOutput{}, errors.New("ticker1, ticker2 and topic are required")
	}
	out := CompareOutput{Topic: in.Topic, FiscalYear: in.FiscalYear}
	var err error
	if out.Company1, err = t.companyPassages(ctx, a, in.Topic, in.FiscalYear); err != nil {
		return nil, CompareOutput{}, err
	}
	if out.Company2, err = t.companyPassages(ctx, b, in.Topic, in.FiscalYear); err != nil {
		return nil, CompareOutput{}, err
	}
	return nil, out, nil
}

func (t *Tools) companyPassages(ctx context.Context, ticker, topic string, year int) (CompanyPassages, error) {
	results, err := t.search.Search(ctx, topic, 3, domain.Filters{Ticker: ticker, FiscalYear: year})
	if err != nil {
		return CompanyPassages{}, err
	}
	cp := CompanyPassages{Ticker: ticker}
	if len(results) == 0 {
		cp.Error = "No information found for " + ticker
	}
	for _, r := range results {
		cp.Sections = append(cp.Sections, passage(r, compareChars, true))
	}
	return cp, nil
}

type YearInput struct {
	Ticker     string `json:"ticker" jsonschema:"Company ticker symbol, e.g. AAPL"`
	FiscalYear int    `json:"fiscal_year" jsonschema:"Fiscal year for the calculation, e.g. 2023"`
}

type PEInput struct {
	Ticker     string  `json:"ticker" jsonschema:"Company ticker symbol, e.g. AAPL"`
	FiscalYear int     `json:"fiscal_year" jsonschema:"Fiscal year whose EPS is used"`
	SharePrice float64 `json:"share_price" jsonschema:"Current share price"`
}

type MarginOutput struct {
	Result *finance.NetProfitMargin `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

type PEOutput struct {
	Result *finance.PERatio `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type RuleOf40Output struct {
	Result *finance.RuleOf40 `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (t *Tools) NetProfitMargin(ctx context.Context, req *mcp.CallToolRequest, in YearInput) (*mcp.CallToolResult, MarginOutput, error) {
	if err := in.validate(); err != nil {
		return nil, MarginOutput{}, err
	}
	r, err := t.calc.NetProfitMargin(ctx, normTicker(in.Ticker), in.FiscalYear)
	if msg, ok := dataError(err); ok {
		return nil, MarginOutput{Error: msg}, nil
	}
	if err != nil {
		return nil, MarginOutput{}, err
	}
	return nil, MarginOutput{Result: &r}, nil
}

func (t *Tools) PERatio(ctx context.Context, req *mcp.CallToolRequest, in PEInput) (*mcp.CallToolResult, PEOutput, error) {
	if err := (YearInput{Ticker: in.Ticker, FiscalYear: in.FiscalYear}).validate(); err != nil {
		return nil, PEOutput{}, err
	}
	r, err := t.calc.PERatio(ctx, normTicker(in.Ticker), in.FiscalYear, in.SharePrice)
	if msg, ok := dataError(err); ok {
		return nil, PEOutput{Error: msg}, nil
	}
	if err != nil {
		return nil, PEOutput{}, err
	}
	return nil, PEOutput{Result: &r}, nil
}

func (t *Tools) RuleOf40(ctx context.Context, req *mcp.CallToolRequest, in YearInput) (*mcp.CallToolResult, RuleOf40Output, error) {
	if err := in.validate(); err != nil {
		return nil, RuleOf40Output{}, err
	}
	r, err := t.calc.RuleOf40FCF(ctx, normTicker(in.Ticker), in.FiscalYear)
	if msg, ok := dataError(err); ok {
		return nil, RuleOf40Output{Error: msg}, nil
	}
	if err != nil {
		return nil, RuleOf40Output{}, err
	}
	return nil, RuleOf40Output{Result: &r}, nil
}

func (in YearInput) validate() error {
	if normTicker(in.Ticker) == "" || in.FiscalYear == 0 {
		return errors.New("ticker and fiscal_year are required")
	}
	return nil
}

// dataError turns missing or unusable figures into a user-facing message.
func dataError(err error) (string, bool) {
	if errors.Is(err, finance.ErrInsufficientData) ||
		errors.Is(err, finance.ErrZeroDenominator) ||
		errors.Is(err, finance.ErrMissingInput) {
		return "Could not calculate: " + err.Error(), true
	}
	return "", false
}

func passage(r domain.SearchResult, limit int, withSection bool) Passage {
	p := Passage{
		FormType:   r.FormType,
		FilingDate: r.FilingDate,
		Text:       Truncate(r.Text, limit),
		Score:      round4(r.Score),
	}
	if withSection {
		p.Section = r.ItemLabel
	}
	return p
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func normTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
