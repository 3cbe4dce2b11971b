package mcpserver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secrag/internal/domain"
	"secrag/internal/finance"
	"secrag/internal/summarizer"
)

type call struct {
	query   string
	topK    int
	filters domain.Filters
}

// fakeSearcher answers by ticker and records every call.
type fakeSearcher struct {
	byTicker map[string][]domain.SearchResult
	calls    []call
	err      error
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int, flt domain.Filters) ([]domain.SearchResult, error) {
	f.calls = append(f.calls, call{query, topK, flt})
	if f.err != nil {
		return nil, f.err
	}
	res := f.byTicker[flt.Ticker]
	if topK > 0 && len(res) > topK {
		res = res[:topK]
	}
	return res, nil
}

func newTools(s *fakeSearcher) *Tools {
	return NewTools(s, finance.NewCalculator(s, zerolog.Nop()), summarizer.NewFrequency(), zerolog.Nop())
}

func result(id, text string) domain.SearchResult {
	return domain.SearchResult{
		ChunkID:    id,
		Ticker:     "AAPL",
		FormType:   "10K",
		FilingDate: "2024-11-01",
		ItemLabel:  "Item 1 - Business",
		ChunkType:  "narrative",
		Text:       text,
		Score:      0.876543,
		Fiscal:     domain.FiscalContext{FiscalYear: 2024, FiscalQuarter: 4},
	}
}

func TestSearchFilings(t *testing.T) {
	fs := &fakeSearcher{byTicker: map[string][]domain.SearchResult{
		"AAPL": {result("a", strings.Repeat("x", 600)), result("b", "short")},
	}}
	_, out, err := newTools(fs).SearchFilings(context.Background(), nil, SearchInput{
		Query:       "iphone",
		TopK:        7,
		Ticker:      " aapl ",
		FormType:    "10-K",
		ItemSection: "Business",
		FiscalYear:  2024,
		ChunkType:   "Narrative",
	})
	require.NoError(t, err)
	require.Len(t, fs.calls, 1)
	assert.Equal(t, 7, fs.calls[0].topK)
	assert.Equal(t, domain.Filters{
		Ticker:     "AAPL",
		FormType:   domain.Form10K,
		FiscalYear: 2024,
		ChunkType:  domain.ChunkNarrative,
		ItemLabel:  "Business",
	}, fs.calls[0].filters)

	assert.Equal(t, 2, out.TotalResults)
	assert.Equal(t, strings.Repeat("x", 500)+"...", out.Results[0].TextPreview)
	assert.Equal(t, "short", out.Results[1].TextPreview)
	assert.Equal(t, 0.8765, out.Results[0].Score)
	assert.Equal(t, "Item 1 - Business", out.Results[0].Section)
	assert.Equal(t, 2024, out.Results[0].FiscalYear)
}

func TestSearchFilingsRejectsBadInput(t *testing.T) {
	tools := newTools(&fakeSearcher{})
	ctx := context.Background()

	_, _, err := tools.SearchFilings(ctx, nil, SearchInput{})
	assert.Error(t, err)
	_, _, err = tools.SearchFilings(ctx, nil, SearchInput{Query: "q", FormType: "8K"})
	assert.Error(t, err)
	_, _, err = tools.SearchFilings(ctx, nil, SearchInput{Query: "q", ChunkType: "image"})
	assert.Error(t, err)
}

func TestSearchFilingsPropagatesErrors(t *testing.T) {
	_, _, err := newTools(&fakeSearcher{err: errors.New("index down")}).
		SearchFilings(context.Background(), nil, SearchInput{Query: "q"})
	assert.ErrorContains(t, err, "index down")
}

func TestCompanyOverview(t *testing.T) {
	fs := &fakeSearcher{byTicker: map[string][]domain.SearchResult{
		"AAPL": {result("a", "Apple designs smartphones."), result("b", "Apple sells services.")},
	}}
	_, out, err := newTools(fs).CompanyOverview(context.Background(), nil, CompanyInput{Ticker: "aapl"})
	require.NoError(t, err)
	assert.Equal(t, "Apple designs smartphones. Apple sells services.", out.Overview)
	assert.Equal(t, []string{"a", "b"}, out.SourceChunks)
	assert.Empty(t, out.Error)

	c := fs.calls[0]
	assert.Equal(t, 3, c.topK)
	assert.Equal(t, domain.Form10K, c.filters.FormType)
	assert.Equal(t, "Business", c.filters.ItemLabel)

	_, out, err = newTools(&fakeSearcher{}).CompanyOverview(context.Background(), nil, CompanyInput{Ticker: "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, "No business information found for MSFT", out.Error)
}

func TestRiskFactors(t *testing.T) {
	fs := &fakeSearcher{byTicker: map[string][]domain.SearchResult{
		"AAPL": {result("a", strings.Repeat("r", 1200))},
	}}
	_, out, err := newTools(fs).RiskFactors(context.Background(), nil, CompanyInput{Ticker: "AAPL", FiscalYear: 2024})
	require.NoError(t, err)
	require.Len(t, out.RiskFactors, 1)
	assert.Len(t, out.RiskFactors[0].Text, 1003)
	assert.Equal(t, 5, fs.calls[0].topK)
	assert.Equal(t, "Risk Factors", fs.calls[0].filters.ItemLabel)
	assert.Equal(t, 2024, fs.calls[0].filters.FiscalYear)
}

func TestCompareCompanies(t *testing.T) {
	fs := &fakeSearcher{byTicker: map[string][]domain.SearchResult{
		"AAPL": {result("a", "Apple competes on design.")},
	}}
	_, out, err := newTools(fs).CompareCompanies(context.Background(), nil, CompareInput{
		Ticker1: "AAPL", Ticker2: "MSFT", Topic: "competition",
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", out.Company1.Ticker)
	require.Len(t, out.Company1.Sections, 1)
	assert.Equal(t, "Item 1 - Business", out.Company1.Sections[0].Section)
	assert.Equal(t, "No information found for MSFT", out.Company2.Error)
	require.Len(t, fs.calls, 2)
	assert.Equal(t, 3, fs.calls[1].topK)

	_, _, err = newTools(fs).CompareCompanies(context.Background(), nil, CompareInput{Ticker1: "AAPL"})
	assert.Error(t, err)
}

func TestCalculatorsReportMissingData(t *testing.T) {
	tools := newTools(&fakeSearcher{})
	ctx := context.Background()

	_, m, err := tools.NetProfitMargin(ctx, nil, YearInput{Ticker: "AAPL", FiscalYear: 2024})
	require.NoError(t, err)
	assert.Nil(t, m.Result)
	assert.Contains(t, m.Error, "insufficient data")

	_, pe, err := tools.PERatio(ctx, nil, PEInput{Ticker: "AAPL", FiscalYear: 2024})
	require.NoError(t, err)
	assert.Contains(t, pe.Error, "share price")

	_, r40, err := tools.RuleOf40(ctx, nil, YearInput{Ticker: "AAPL", FiscalYear: 2024})
	require.NoError(t, err)
	assert.Contains(t, r40.Error, "insufficient data")

	_, _, err = tools.NetProfitMargin(ctx, nil, YearInput{Ticker: "AAPL"})
	assert.Error(t, err)
}

func TestNetProfitMarginTool(t *testing.T) {
	fs := &fakeSearcher{byTicker: map[string][]domain.SearchResult{
		"AAPL": {result("s", "Net income was $20 billion. Total net sales were $100 billion.")},
	}}
	_, out, err := newTools(fs).NetProfitMargin(context.Background(), nil, YearInput{Ticker: "aapl", FiscalYear: 2024})
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.InDelta(t, 20.0, out.Result.MarginPct, 1e-9)
	assert.Equal(t, "AAPL", out.Result.Ticker)
}

func TestServerListsTools(t *testing.T) {
	ctx := context.Background()
	server := NewServer(newTools(&fakeSearcher{}), "test")

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"calculate_net_profit_margin",
		"calculate_pe_ratio",
		"calculate_rule_of_40_fcf",
		"compare_companies",
		"get_company_overview",
		"get_risk_factors",
		"search_sec_filings",
	}, names)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hé...", Truncate("héllo", 2))
}
