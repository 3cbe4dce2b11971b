// Package sections partitions raw filing text into ordered, labelled
// sections by trying a ladder of detection strategies.
package sections

import (
	"strings"

	"github.com/rs/zerolog"

	"secrag/internal/domain"
)

// Strategy finds sections in a document. Returned sections must be ordered
// by Start and must not overlap.
type Strategy interface {
	Name() string
	// MinSections is the number of non-intro sections a result needs to be accepted.
	MinSections() int
	Detect(text string) []domain.Section
}

// Detector runs strategies in priority order and keeps the first result
// that meets the strategy's threshold.
type Detector struct {
	strategies []Strategy
	log        zerolog.Logger
}

// NewDetector builds a Detector. With no strategies the default ladder is used.
func NewDetector(log zerolog.Logger, strategies ...Strategy) *Detector {
	if len(strategies) == 0 {
		strategies = DefaultStrategies(DefaultTieBreakWindow)
	}
	return &Detector{
		strategies: strategies,
		log:        log.With().Str("component", "sections").Logger(),
	}
}

// DefaultStrategies returns headers, table of contents, pages and the
// whole-document fallback, in that order.
func DefaultStrategies(tieBreakWindow int) []Strategy {
	return []Strategy{
		NewHeaderStrategy(tieBreakWindow),
		NewTOCStrategy(),
		NewPageStrategy(),
		DocumentStrategy{},
	}
}

// Detect returns the sections of text. It never fails: when no strategy
// qualifies the whole text becomes one document section.
func (d *Detector) Detect(text string) []domain.Section {
	_, secs := d.DetectWith(text)
	return secs
}

// DetectWith is Detect that also reports the name of the accepted strategy.
func (d *Detector) DetectWith(text string) (string, []domain.Section) {
	for _, s := range d.strategies {
		secs := s.Detect(text)
		n := countStructural(secs)
		if n >= s.MinSections() && len(secs) > 0 {
			d.log.Debug().Str("strategy", s.Name()).Int("sections", len(secs)).Msg("sections detected")
			return s.Name(), secs
		}
		d.log.Debug().Str("strategy", s.Name()).Int("found", n).Int("need", s.MinSections()).Msg("strategy rejected")
	}
	fallback := DocumentStrategy{}
	return fallback.Name(), fallback.Detect(text)
}

func countStructural(secs []domain.Section) int {
	n := 0
	for _, s := range secs {
		if s.Type != domain.SectionIntro {
			n++
		}
	}
	return n
}

// build turns ordered start offsets into contiguous sections, prefixing an
// intro section when the text before the first start is not blank.
func build(text string, heads []domain.Section) []domain.Section {
	if len(heads) == 0 {
		return nil
	}
	out := make([]domain.Section, 0, len(heads)+1)
	if first := heads[0].Start; first > 0 && strings.TrimSpace(text[:first]) != "" {
		out = append(out, domain.Section{
			Title:   "Intro",
			Type:    domain.SectionIntro,
			RawText: text[:first],
			Start:   0,
			End:     first,
		})
	}
	for i, h := range heads {
		h.End = len(text)
		if i+1 < len(heads) {
			h.End = heads[i+1].Start
		}
		h.RawText = text[h.Start:h.End]
		out = append(out, h)
	}
	return out
}

// DocumentStrategy is the terminal fallback: the whole text is one section.
type DocumentStrategy struct{}

func (DocumentStrategy) Name() string     { return "document" }
func (DocumentStrategy) MinSections() int { return 1 }

func (DocumentStrategy) Detect(text string) []domain.Section {
	return []domain.Section{{
		Title:   "Full Document",
		Type:    domain.SectionDocument,
		RawText: text,
		Start:   0,
		End:     len(text),
	}}
}
