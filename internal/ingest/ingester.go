package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"secrag/internal/domain"
	"secrag/internal/embedding"
	"secrag/internal/metadata"
	"secrag/internal/metrics"
	"secrag/internal/vectorstore"
)

// ErrNoFilings is returned when no path matches a supported filing.
var ErrNoFilings = errors.New("no .txt/.htm/.html filings found")

type Options struct {
	// UpsertBatchSize caps records per upsert call; at most MaxUpsertBatch.
	UpsertBatchSize int
	// Concurrency bounds the filings processed at once.
	Concurrency int
}

// Ingester embeds chunks and uploads them to the vector index.
type Ingester struct {
	pipeline *Pipeline
	embedder embedding.Embedder
	store    vectorstore.Storage
	opts     Options
	log      zerolog.Logger
	metrics  *metrics.Metrics

	initMu  sync.Mutex
	initDim int
}

func NewIngester(p *Pipeline, e embedding.Embedder, s vectorstore.Storage, opts Options, log zerolog.Logger, m *metrics.Metrics) *Ingester {
	if opts.UpsertBatchSize <= 0 || opts.UpsertBatchSize > vectorstore.MaxUpsertBatch {
		opts.UpsertBatchSize = vectorstore.MaxUpsertBatch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Ingester{
		pipeline: p,
		embedder: e,
		store:    s,
		opts:     opts,
		log:      log.With().Str("component", "ingest").Logger(),
		metrics:  m,
	}
}

// Upload embeds every chunk and upserts the records in batches, keeping
// chunk order. If embedding fails nothing is uploaded.
func (in *Ingester) Upload(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := embedding.EmbedAll(ctx, in.embedder, texts)
	in.metrics.EmbedCall(err)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if err := in.ensureInit(ctx, len(vecs[0])); err != nil {
		return err
	}

	records := make([]domain.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.VectorRecord{ID: c.ID, Values: vecs[i], Metadata: c.Metadata()}
	}
	for start := 0; start < len(records); start += in.opts.UpsertBatchSize {
		end := min(start+in.opts.UpsertBatchSize, len(records))
		err := in.store.Upsert(ctx, records[start:end])
		in.metrics.UpsertCall(err)
		if err != nil {
			return fmt.Errorf("upsert records %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (in *Ingester) ensureInit(ctx context.Context, dim int) error {
	in.initMu.Lock()
	defer in.initMu.Unlock()
	if in.initDim == dim {
		return nil
	}
	if err := in.store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init vector store (dim %d): %w", dim, err)
	}
	in.initDim = dim
	return nil
}

// Clear removes every stored record. Some stores drop the whole collection,
// so the next upload initialises the store again.
func (in *Ingester) Clear(ctx context.Context) error {
	in.initMu.Lock()
	defer in.initMu.Unlock()
	in.initDim = 0
	return in.store.Clear(ctx)
}

// Report describes one ingested filing.
type Report struct {
	Path     string
	Filing   domain.FilingIdentity
	Chunks   int
	Uploaded bool
	Err      error
}

// IngestFiling chunks and uploads one filing's text.
func (in *Ingester) IngestFiling(ctx context.Context, id domain.FilingIdentity, text string) (Report, error) {
	rep := in.finish(ctx, Report{Filing: id}, in.pipeline.ChunkFiling(id, text))
	return rep, rep.Err
}

func (in *Ingester) finish(ctx context.Context, rep Report, chunks []domain.Chunk) Report {
	rep.Chunks = len(chunks)
	if err := in.Upload(ctx, chunks); err != nil {
		in.metrics.Filing("failed")
		in.log.Error().Err(err).Str("filing", rep.Filing.Key()).Msg("upload failed")
		rep.Err = err
		return rep
	}
	in.metrics.Filing("ingested")
	rep.Uploaded = true
	in.log.Info().Str("filing", rep.Filing.Key()).Int("chunks", rep.Chunks).Msg("filing ingested")
	return rep
}

// Summary totals a bulk ingestion run.
type Summary struct {
	Reports []Report
	Skipped []string
}

func (s Summary) Chunks() int {
	n := 0
	for _, r := range s.Reports {
		if r.Uploaded {
			n += r.Chunks
		}
	}
	return n
}

func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Reports {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// IngestPaths expands globs and ingests every matching filing. Files whose
// names do not follow the convention are skipped with a warning; a failing
// filing does not stop the others. The returned error joins the failures.
func (in *Ingester) IngestPaths(ctx context.Context, patterns []string) (Summary, error) {
	paths := Expand(patterns)
	if len(paths) == 0 {
		return Summary{}, ErrNoFilings
	}

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)
	for _, path := range paths {
		g.Go(func() error {
			rep, skipped := in.ingestFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if skipped {
				sum.Skipped = append(sum.Skipped, path)
				return nil
			}
			sum.Reports = append(sum.Reports, rep)
			if rep.Err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	sort.Slice(sum.Reports, func(i, j int) bool { return sum.Reports[i].Path < sum.Reports[j].Path })
	sort.Strings(sum.Skipped)
	var errs []error
	for _, r := range sum.Reports {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}
	return sum, errors.Join(errs...)
}

// ingestFile reports skipped=true for input-shape errors.
func (in *Ingester) ingestFile(ctx context.Context, path string) (Report, bool) {
	id, chunks, err := in.pipeline.ChunkFile(path)
	switch {
	case errors.Is(err, metadata.ErrBadFilename), errors.Is(err, metadata.ErrBadDate):
		in.metrics.Filing("skipped")
		in.log.Warn().Err(err).Str("path", path).Msg("skipping file")
		return Report{Path: path}, true
	case err != nil:
		in.metrics.Filing("failed")
		in.log.Error().Err(err).Str("path", path).Msg("read failed")
		return Report{Path: path, Filing: id, Err: err}, false
	}
	return in.finish(ctx, Report{Path: path, Filing: id}, chunks), false
}

// Expand resolves globs to the supported filing paths they match, in order
// and without duplicates. A pattern that matches nothing is kept as a path.
func Expand(patterns []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !Supported(m) || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
