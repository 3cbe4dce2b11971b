// Package chunker splits filing sections into table chunks and
// token-budgeted narrative chunks with trailing overlap.
package chunker

import (
	"regexp"

	"github.com/rs/zerolog"

	"secrag/internal/domain"
	"secrag/internal/metrics"
	"secrag/internal/tokenizer"
)

// Options bound chunk sizes, all in tokens.
type Options struct {
	MinTokens     int
	TargetSize    int
	OverlapTokens int
	// UnitCap is the size above which a sentence is split by paragraph.
	// Zero means TargetSize.
	UnitCap int
}

// DefaultOptions returns the production sizes.
func DefaultOptions() Options {
	return Options{MinTokens: 25, TargetSize: 500, OverlapTokens: 50}
}

var tableRe = regexp.MustCompile(`(?s)\[TABLE_START\].*?\[TABLE_END\]`)

// Segmenter turns one section into chunks. It keeps no state between calls.
type Segmenter struct {
	tok     tokenizer.Tokenizer
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewSegmenter(tok tokenizer.Tokenizer, opts Options, log zerolog.Logger, m *metrics.Metrics) *Segmenter {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultOptions().TargetSize
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens >= opts.TargetSize {
		opts.OverlapTokens = opts.TargetSize / 2
	}
	if opts.UnitCap <= 0 {
		opts.UnitCap = opts.TargetSize
	}
	return &Segmenter{
		tok:     tok,
		opts:    opts,
		log:     log.With().Str("component", "chunker").Logger(),
		metrics: m,
	}
}

// Options reports the effective sizes after defaults.
func (s *Segmenter) Options() Options { return s.opts }

// Segment splits one section. Table chunks come first, then narrative
// chunks; every returned chunk has at least MinTokens tokens. IDs are left
// empty for the caller to assign across the whole filing.
func (s *Segmenter) Segment(sec domain.Section, label string, id domain.FilingIdentity, fiscal domain.FiscalContext) []domain.Chunk {
	proto := domain.Chunk{ItemLabel: label, Filing: id, Fiscal: fiscal}
	var out []domain.Chunk

	for _, raw := range tableRe.FindAllString(sec.RawText, -1) {
		text := Clean(raw)
		c := proto
		c.Type = domain.ChunkTable
		c.Text = text
		c.TokenCount = s.tok.Count(text)
		out = s.keep(out, c)
	}

	narrative := tableRe.ReplaceAllString(sec.RawText, "\n\n")
	units, mode := semanticUnits(narrative, s.tok, s.opts.UnitCap)
	for _, g := range s.accumulate(units, mode.separator()) {
		c := proto
		c.Type = domain.ChunkNarrative
		c.Text = g.text
		c.TokenCount = s.tok.Count(g.text)
		c.HasOverlap = g.overlap
		out = s.keep(out, c)
	}
	return out
}

func (s *Segmenter) keep(out []domain.Chunk, c domain.Chunk) []domain.Chunk {
	if c.Text == "" || c.TokenCount < s.opts.MinTokens {
		s.metrics.ChunkDropped(string(c.Type))
		s.log.Debug().
			Str("item", c.ItemLabel).
			Str("type", string(c.Type)).
			Int("tokens", c.TokenCount).
			Msg("chunk below min_tokens dropped")
		return out
	}
	s.metrics.ChunkKept(string(c.Type))
	return append(out, c)
}

type group struct {
	text    string
	overlap bool
}

// accumulate packs units greedily under TargetSize. After each emitted
// chunk the next buffer is seeded with the longest proper suffix of the
// emitted units that fits in OverlapTokens. A unit that does not fit even
// next to the seed alone drops the seed and is emitted by itself.
func (s *Segmenter) accumulate(units []unit, sep string) []group {
	var (
		out  []group
		buf  []unit
		seed int // leading units of buf carried over from the previous chunk
	)
	fits := func(next unit) bool {
		return s.tok.Count(join(append(buf[:len(buf):len(buf)], next), sep)) <= s.opts.TargetSize
	}
	emit := func() {
		out = append(out, group{text: join(buf, sep), overlap: seed > 0})
		prev := buf
		buf, seed = nil, 0
		if k := s.overlapStart(prev, sep); k > 0 {
			buf = append(buf, prev[k:]...)
			seed = len(buf)
		}
	}

	for _, u := range units {
		if len(buf) > seed && !fits(u) {
			emit()
		}
		if len(buf) > 0 && len(buf) == seed && !fits(u) {
			buf, seed = nil, 0
		}
		buf = append(buf, u)
	}
	if len(buf) > seed {
		out = append(out, group{text: join(buf, sep), overlap: seed > 0})
	}
	return out
}

// overlapStart returns the index where the overlap suffix of units begins,
// or 0 when no proper suffix fits.
func (s *Segmenter) overlapStart(units []unit, sep string) int {
	if s.opts.OverlapTokens <= 0 {
		return 0
	}
	start := 0
	for k := len(units) - 1; k >= 1; k-- {
		if s.tok.Count(join(units[k:], sep)) > s.opts.OverlapTokens {
			break
		}
		start = k
	}
	return start
}
