// Package finance pulls scalar figures out of filing text and computes the
// ratios exposed to agents.
package finance

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Synonym lists, tried in order; the first successful extraction wins.
var (
	RevenueKeywords   = []string{"Revenue", "Total Net Sales", "Net Sales", "Sales"}
	NetIncomeKeywords = []string{"Net Income", "Net Earnings"}
	FCFKeywords       = []string{"Free Cash Flow"}
)

// maxPlausibleEPS rejects per-share values that are really totals.
const maxPlausibleEPS = 1000

var (
	patterns sync.Map // keyword -> *regexp.Regexp

	epsRe = regexp.MustCompile(`(?i)(?:Earnings Per Share|EPS|Net Income Per Share)\s*[:$]?\s*(\d+\.\d{2})`)

	magnitudes = []struct {
		word string
		mult float64
	}{
		{"trillion", 1e12},
		{"billion", 1e9},
		{"million", 1e6},
	}
)

func pattern(keyword string) *regexp.Regexp {
	if re, ok := patterns.Load(keyword); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(keyword) +
		`[^.\d]*?([$€£]?\s*\d[\d,]*(?:\.\d+)?(?:\s*(?:billion|million|trillion))?)`)
	patterns.Store(keyword, re)
	return re
}

// Extract finds keyword followed, before any full stop, by a number with an
// optional currency symbol and magnitude word. The bool is false when
// nothing was found, which is different from a found zero.
func Extract(text, keyword string) (float64, bool) {
	if keyword == "" {
		return 0, false
	}
	m := pattern(keyword).FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseAmount(m[1])
}

// ExtractFirst tries keywords in order and reports which one matched.
func ExtractFirst(text string, keywords []string) (float64, string, bool) {
	for _, k := range keywords {
		if v, ok := Extract(text, k); ok {
			return v, k, true
		}
	}
	return 0, "", false
}

// ExtractEPS looks for a per-share figure with two decimals, falling back to
// Extract on "Earnings Per Share". Values above 1000 are rejected.
func ExtractEPS(text string) (float64, bool) {
	if m := epsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	v, ok := Extract(text, "Earnings Per Share")
	if !ok || v > maxPlausibleEPS {
		return 0, false
	}
	return v, true
}

func parseAmount(s string) (float64, bool) {
	s = strings.ToLower(s)
	mult := 1.0
	for _, m := range magnitudes {
		if strings.Contains(s, m.word) {
			mult = m.mult
			s = strings.ReplaceAll(s, m.word, "")
			break
		}
	}
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}
