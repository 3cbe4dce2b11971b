// Package metadata resolves canonical item labels, fiscal periods and filing
// identities for SEC filings.
package metadata

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"secrag/internal/domain"
)

// UnknownSection is the label name used for item numbers missing from the tables.
const UnknownSection = "Unknown Section"

const (
	PartI  = "PART I"
	PartII = "PART II"
)

// ItemTables maps item numbers to canonical names. 10-Q Part I and Part II
// use disjoint namespaces.
type ItemTables struct {
	TenK       map[string]string
	TenQPartI  map[string]string
	TenQPartII map[string]string
}

// DefaultItemTables returns the SEC Regulation S-K item names.
func DefaultItemTables() ItemTables {
	return ItemTables{
		TenK: map[string]string{
			"1":  "Business",
			"1A": "Risk Factors",
			"1B": "Unresolved Staff Comments",
			"1C": "Cybersecurity",
			"2":  "Properties",
			"3":  "Legal Proceedings",
			"4":  "Mine Safety Disclosures",
			"5":  "Market for Registrant's Common Equity, Related Stockholder Matters and Issuer Purchases of Equity Securities",
			"6":  "Reserved",
			"7":  "Management's Discussion and Analysis of Financial Condition and Results of Operations",
			"7A": "Quantitative and Qualitative Disclosures About Market Risk",
			"8":  "Financial Statements and Supplementary Data",
			"9":  "Changes in and Disagreements With Accountants on Accounting and Financial Disclosure",
			"9A": "Controls and Procedures",
			"9B": "Other Information",
			"9C": "Disclosure Regarding Foreign Jurisdictions that Prevent Inspections",
			"10": "Directors, Executive Officers and Corporate Governance",
			"11": "Executive Compensation",
			"12": "Security Ownership of Certain Beneficial Owners and Management and Related Stockholder Matters",
			"13": "Certain Relationships and Related Transactions, and Director Independence",
			"14": "Principal Accountant Fees and Services",
			"15": "Exhibits, Financial Statement Schedules",
			"16": "Form 10-K Summary",
		},
		TenQPartI: map[string]string{
			"1": "Financial Statements",
			"2": "Management's Discussion and Analysis of Financial Condition and Results of Operations",
			"3": "Quantitative and Qualitative Disclosures About Market Risk",
			"4": "Controls and Procedures",
		},
		TenQPartII: map[string]string{
			"1":  "Legal Proceedings",
			"1A": "Risk Factors",
			"2":  "Unregistered Sales of Equity Securities and Use of Proceeds",
			"3":  "Defaults Upon Senior Securities",
			"4":  "Mine Safety Disclosures",
			"5":  "Other Information",
			"6":  "Exhibits",
		},
	}
}

// table returns the item map for a form and part.
func (t ItemTables) table(form domain.FormType, part string) map[string]string {
	if form != domain.Form10Q {
		return t.TenK
	}
	if part == PartI {
		return t.TenQPartI
	}
	return t.TenQPartII
}

// partIIOnly reports whether item exists only in the 10-Q Part II namespace.
func (t ItemTables) partIIOnly(item string) bool {
	_, inII := t.TenQPartII[item]
	_, inI := t.TenQPartI[item]
	return inII && !inI
}

// Assigner derives human-readable item labels. The tables are injected and
// never mutated.
type Assigner struct {
	tables ItemTables
}

// NewAssigner builds an Assigner over the given tables.
func NewAssigner(tables ItemTables) *Assigner {
	return &Assigner{tables: tables}
}

// ItemLabel resolves one item within an explicit part context.
func (a *Assigner) ItemLabel(form domain.FormType, part, item string) string {
	item = strings.ToUpper(item)
	name, ok := a.tables.table(form, part)[item]
	if !ok {
		name = UnknownSection
	}
	if form == domain.Form10Q {
		return fmt.Sprintf("%s, Item %s - %s", part, item, name)
	}
	return fmt.Sprintf("Item %s - %s", item, name)
}

// Labels resolves a label for every section of one filing, in order. The
// running part context starts at PART I, is reset by each PART header and
// switches to PART II when a 10-Q item exists only in Part II.
func (a *Assigner) Labels(form domain.FormType, sections []domain.Section) []string {
	labels := make([]string, len(sections))
	part := PartI
	for i, s := range sections {
		switch s.Type {
		case domain.SectionPart:
			if p := NormalizePart(s.Part); p != "" {
				part = p
			}
			labels[i] = a.ItemLabel(form, part, "1")
		case domain.SectionItem:
			if s.Part != "" {
				part = NormalizePart(s.Part)
			}
			if form == domain.Form10Q && a.tables.partIIOnly(strings.ToUpper(s.ItemNumber)) {
				part = PartII
			}
			labels[i] = a.ItemLabel(form, part, s.ItemNumber)
		case domain.SectionNamed:
			item, p, ok := a.namedItem(form, part, s.Title)
			if !ok {
				labels[i] = titleCase(s.Title)
				continue
			}
			part = p
			labels[i] = a.ItemLabel(form, part, item)
		case domain.SectionIntro:
			labels[i] = "Intro"
		case domain.SectionDocument:
			labels[i] = "Full Document"
		default:
			labels[i] = titleCase(s.Title)
		}
	}
	return labels
}

// namedItem finds the item whose canonical name matches a bare heading such
// as "RISK FACTORS". The current part is searched first; a 10-Q heading that
// only matches the other part moves the context there.
func (a *Assigner) namedItem(form domain.FormType, part, title string) (string, string, bool) {
	title = normalizeHeading(title)
	if title == "" {
		return "", "", false
	}
	parts := []string{part}
	if form == domain.Form10Q {
		if part == PartI {
			parts = append(parts, PartII)
		} else {
			parts = append(parts, PartI)
		}
	}
	for _, p := range parts {
		table := a.tables.table(form, p)
		for _, item := range slices.Sorted(maps.Keys(table)) {
			name := normalizeHeading(table[item])
			if strings.HasPrefix(name, title) || strings.HasPrefix(title, name) {
				return item, p, true
			}
		}
	}
	return "", "", false
}

func normalizeHeading(s string) string {
	s = strings.ReplaceAll(strings.ToUpper(s), "\u2019", "'")
	s = strings.TrimRight(strings.TrimSpace(s), ".:")
	return strings.Join(strings.Fields(s), " ")
}

var partRe = regexp.MustCompile(`(?i)^\s*(?:PART\s+)?([IVX]+)\b`)

// NormalizePart renders "part ii", "II" or "PART II." as "PART II".
func NormalizePart(p string) string {
	m := partRe.FindStringSubmatch(p)
	if m == nil {
		return ""
	}
	return "PART " + strings.ToUpper(m[1])
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownSection
	}
	if strings.ToUpper(s) != s {
		return s
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if i > 0 && (w == "and" || w == "of" || w == "the" || w == "for" || w == "in") {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
