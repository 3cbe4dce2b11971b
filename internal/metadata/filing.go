package metadata

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"secrag/internal/domain"
)

var (
	ErrBadFilename = errors.New("filename is not {ticker}_{form_type}_{filing_date}")
	ErrBadDate     = errors.New("filing date is not YYYY-MM-DD")
)

// ParseFilename derives a FilingIdentity from a path such as
// data/AAPL_10K_2024-11-01.txt.
func ParseFilename(path string) (domain.FilingIdentity, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) != 3 || parts[0] == "" {
		return domain.FilingIdentity{}, fmt.Errorf("%s: %w", base, ErrBadFilename)
	}
	form, err := domain.ParseFormType(parts[1])
	if err != nil {
		return domain.FilingIdentity{}, fmt.Errorf("%s: %w", base, ErrBadFilename)
	}
	date, err := time.Parse(domain.DateLayout, parts[2])
	if err != nil {
		return domain.FilingIdentity{}, fmt.Errorf("%s: %w", base, ErrBadDate)
	}
	return domain.FilingIdentity{
		Ticker:     strings.ToUpper(parts[0]),
		FormType:   form,
		FilingDate: date,
	}, nil
}

// Fiscal derives the fiscal period of a filing. A 10-K filed before April
// reports on the previous year; the quarter is the calendar quarter of the
// filing date for every form.
func Fiscal(id domain.FilingIdentity) domain.FiscalContext {
	year := id.FilingDate.Year()
	if id.FormType == domain.Form10K && id.FilingDate.Month() < time.April {
		year--
	}
	return domain.FiscalContext{
		FiscalYear:    year,
		FiscalQuarter: (int(id.FilingDate.Month())-1)/3 + 1,
	}
}
