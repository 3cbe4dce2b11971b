package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"secrag/internal/domain"
)

var (
	// ErrInsufficientData means a required figure could not be found.
	ErrInsufficientData = errors.New("insufficient data")
	ErrZeroDenominator  = errors.New("zero denominator")
	ErrMissingInput     = errors.New("missing input")
)

// StatementsItem narrows figure lookups to the financial statements item.
const StatementsItem = "Financial Statements"

const lookupTopK = 2

// Searcher is the retrieval capability the calculators need.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, f domain.Filters) ([]domain.SearchResult, error)
}

// Calculator derives ratios from figures found in 10-K filings.
type Calculator struct {
	search Searcher
	log    zerolog.Logger
}

func NewCalculator(s Searcher, log zerolog.Logger) *Calculator {
	return &Calculator{search: s, log: log.With().Str("component", "finance").Logger()}
}

type NetProfitMargin struct {
	Ticker     string  `json:"ticker"`
	FiscalYear int     `json:"fiscal_year"`
	NetIncome  float64 `json:"net_income"`
	Revenue    float64 `json:"revenue"`
	MarginPct  float64 `json:"net_profit_margin_pct"`
}

type PERatio struct {
	Ticker     string  `json:"ticker"`
	FiscalYear int     `json:"fiscal_year"`
	SharePrice float64 `json:"share_price"`
	EPS        float64 `json:"earnings_per_share"`
	Ratio      float64 `json:"pe_ratio"`
}

type RuleOf40 struct {
	Ticker          string  `json:"ticker"`
	FiscalYear      int     `json:"fiscal_year"`
	Revenue         float64 `json:"current_year_revenue"`
	PreviousRevenue float64 `json:"previous_year_revenue"`
	GrowthPct       float64 `json:"revenue_growth_rate_pct"`
	FreeCashFlow    float64 `json:"free_cash_flow"`
	FCFMarginPct    float64 `json:"fcf_margin_pct"`
	Score           float64 `json:"rule_of_40_fcf"`
}

// lookup searches the statements of one fiscal year and returns the first
// figure extract finds in the ranked results.
func (c *Calculator) lookup(ctx context.Context, query, ticker string, year int, what string, extract func(string) (float64, bool)) (float64, error) {
	results, err := c.search.Search(ctx, query, lookupTopK, domain.Filters{
		Ticker:     ticker,
		FormType:   domain.Form10K,
		FiscalYear: year,
		ItemLabel:  StatementsItem,
	})
	if err != nil {
		return 0, fmt.Errorf("search %s: %w", what, err)
	}
	for _, r := range results {
		if v, ok := extract(r.Text); ok {
			c.log.Debug().Str("ticker", ticker).Int("fiscal_year", year).Str("figure", what).Float64("value", v).Str("chunk", r.ChunkID).Msg("figure extracted")
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %s for %s in fiscal %d", ErrInsufficientData, what, ticker, year)
}

func keywords(list []string) func(string) (float64, bool) {
	return func(text string) (float64, bool) {
		v, _, ok := ExtractFirst(text, list)
		return v, ok
	}
}

func (c *Calculator) revenue(ctx context.Context, ticker string, year int) (float64, error) {
	return c.lookup(ctx, "Revenue sales", ticker, year, "revenue", keywords(RevenueKeywords))
}

// NetProfitMargin is net income over revenue, in percent.
func (c *Calculator) NetProfitMargin(ctx context.Context, ticker string, year int) (NetProfitMargin, error) {
	income, err := c.lookup(ctx, "Net Income", ticker, year, "net income", keywords(NetIncomeKeywords))
	if err != nil {
		return NetProfitMargin{}, err
	}
	rev, err := c.revenue(ctx, ticker, year)
	if err != nil {
		return NetProfitMargin{}, err
	}
	if rev == 0 {
		return NetProfitMargin{}, fmt.Errorf("%w: revenue for %s in fiscal %d is zero", ErrZeroDenominator, ticker, year)
	}
	return NetProfitMargin{
		Ticker:     ticker,
		FiscalYear: year,
		NetIncome:  income,
		Revenue:    rev,
		MarginPct:  income / rev * 100,
	}, nil
}

// PERatio divides the caller-supplied share price by the reported EPS.
func (c *Calculator) PERatio(ctx context.Context, ticker string, year int, sharePrice float64) (PERatio, error) {
	if sharePrice <= 0 {
		return PERatio{}, fmt.Errorf("%w: share price is required", ErrMissingInput)
	}
	eps, err := c.lookup(ctx, "Earnings Per Share EPS diluted", ticker, year, "earnings per share", ExtractEPS)
	if err != nil {
		return PERatio{}, err
	}
	if eps == 0 {
		return PERatio{}, fmt.Errorf("%w: earnings per share for %s in fiscal %d is zero", ErrZeroDenominator, ticker, year)
	}
	return PERatio{
		Ticker:     ticker,
		FiscalYear: year,
		SharePrice: sharePrice,
		EPS:        eps,
		Ratio:      sharePrice / eps,
	}, nil
}

// RuleOf40FCF adds year-over-year revenue growth to the free cash flow
// margin, both in percent.
func (c *Calculator) RuleOf40FCF(ctx context.Context, ticker string, year int) (RuleOf40, error) {
	cur, err := c.revenue(ctx, ticker, year)
	if err != nil {
		return RuleOf40{}, err
	}
	prev, err := c.revenue(ctx, ticker, year-1)
	if err != nil {
		return RuleOf40{}, err
	}
	fcf, err := c.lookup(ctx, "Free Cash Flow", ticker, year, "free cash flow", keywords(FCFKeywords))
	if err != nil {
		return RuleOf40{}, err
	}
	if prev == 0 {
		return RuleOf40{}, fmt.Errorf("%w: previous year revenue for %s is zero", ErrZeroDenominator, ticker)
	}
	if cur == 0 {
		return RuleOf40{}, fmt.Errorf("%w: revenue for %s in fiscal %d is zero", ErrZeroDenominator, ticker, year)
	}
	growth := (cur - prev) / prev * 100
	margin := fcf / cur * 100
	return RuleOf40{
		Ticker:          ticker,
		FiscalYear:      year,
		Revenue:         cur,
		PreviousRevenue: prev,
		GrowthPct:       growth,
		FreeCashFlow:    fcf,
		FCFMarginPct:    margin,
		Score:           growth + margin,
	}, nil
}
