// Package ingest turns filing files into labelled chunks and uploads them
// to a vector index through an embedder.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"secrag/internal/chunker"
	"secrag/internal/domain"
	"secrag/internal/finance"
	"secrag/internal/htmltext"
	"secrag/internal/metadata"
	"secrag/internal/metrics"
	"secrag/internal/sections"
)

// Pipeline runs section detection, labelling and segmentation for one
// filing at a time. It holds no per-filing state and is safe for
// concurrent use.
type Pipeline struct {
	detector  *sections.Detector
	assigner  *metadata.Assigner
	segmenter *chunker.Segmenter
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

func NewPipeline(d *sections.Detector, a *metadata.Assigner, s *chunker.Segmenter, log zerolog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		detector:  d,
		assigner:  a,
		segmenter: s,
		log:       log.With().Str("component", "pipeline").Logger(),
		metrics:   m,
	}
}

// ChunkID formats the id of the seq-th chunk of a filing.
func ChunkID(id domain.FilingIdentity, seq int) string {
	return fmt.Sprintf("%s-chunk-%04d", id.Key(), seq)
}

// ChunkFiling segments a filing's text. Sequence numbers are contiguous over
// the chunks that survived filtering, in emission order.
func (p *Pipeline) ChunkFiling(id domain.FilingIdentity, text string) []domain.Chunk {
	fiscal := metadata.Fiscal(id)
	strategy, secs := p.detector.DetectWith(text)
	p.metrics.Strategy(strategy)
	labels := p.assigner.Labels(id.FormType, secs)

	var chunks []domain.Chunk
	for i, sec := range secs {
		chunks = append(chunks, p.segmenter.Segment(sec, labels[i], id, fiscal)...)
	}
	for i := range chunks {
		chunks[i].ID = ChunkID(id, i)
	}

	if rev, ok := filingRevenue(chunks); ok {
		for i := range chunks {
			chunks[i].FilingRevenue = &rev
		}
	}

	p.log.Info().
		Str("filing", id.Key()).
		Str("strategy", strategy).
		Int("sections", len(secs)).
		Int("chunks", len(chunks)).
		Msg("filing chunked")
	return chunks
}

// filingRevenue returns the first revenue figure found, scanning chunks in
// emission order.
func filingRevenue(chunks []domain.Chunk) (float64, bool) {
	for _, c := range chunks {
		if v, _, ok := finance.ExtractFirst(c.Text, finance.RevenueKeywords); ok {
			return v, true
		}
	}
	return 0, false
}

// ChunkFile reads a filing named by the filename convention and chunks it.
func (p *Pipeline) ChunkFile(path string) (domain.FilingIdentity, []domain.Chunk, error) {
	id, err := metadata.ParseFilename(path)
	if err != nil {
		return domain.FilingIdentity{}, nil, err
	}
	text, err := ReadFiling(path)
	if err != nil {
		return id, nil, err
	}
	return id, p.ChunkFiling(id, text), nil
}

// ReadFiling loads a filing as marker-dialect text. HTML files are
// converted; anything else is read verbatim.
func ReadFiling(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if isHTML(path) {
		text, err := htmltext.Convert(f)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return text, nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".htm", ".html":
		return true
	}
	return false
}

// Supported reports whether a path has an extension the pipeline reads.
func Supported(path string) bool {
	return isHTML(path) || strings.EqualFold(filepath.Ext(path), ".txt")
}
