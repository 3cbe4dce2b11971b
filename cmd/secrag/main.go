package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"secrag/internal/chunker"
	"secrag/internal/config"
	"secrag/internal/embedding"
	"secrag/internal/embedding/gemini"
	"secrag/internal/embedding/hashing"
	"secrag/internal/embedding/openai"
	"secrag/internal/ingest"
	"secrag/internal/logger"
	"secrag/internal/metadata"
	"secrag/internal/metrics"
	"secrag/internal/retrieval"
	"secrag/internal/sections"
	"secrag/internal/tokenizer"
	"secrag/internal/vectorstore"
	"secrag/internal/vectorstore/memory"
	"secrag/internal/vectorstore/pgvector"
	"secrag/internal/vectorstore/qdrant"
	"secrag/internal/vectorstore/sqlite"
)

var version = "dev"

var (
	cfgPath     string
	logLevel    string
	preload     []string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "secrag",
	Short: "Semantic search over SEC 10-K and 10-Q filings",
	Long: `secrag splits SEC filings into labelled chunks, embeds them and
serves filtered semantic search over the result.

Filings are named {ticker}_{form}_{date}.txt, .htm or .html, for example
AAPL_10K_2024-11-01.htm.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/secrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	rootCmd.PersistentFlags().StringSliceVar(&preload, "preload", nil, "filings or globs to ingest before running the command")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-listen", "", "override metrics.listen, e.g. :9090")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds the components every command assembles from config.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	metrics  *metrics.Metrics
	embedder embedding.Embedder
	store    vectorstore.Storage
	pipeline *ingest.Pipeline
	ingester *ingest.Ingester
	engine   *retrieval.Engine
	server   *http.Server
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// newApp builds the pipeline. withIndex=false skips the embedder and vector
// store so chunk dry runs need no credentials.
func newApp(ctx context.Context, withIndex bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Listen = metricsAddr
	}
	a := &app{
		cfg:     cfg,
		log:     logger.New(logger.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty}),
		metrics: metrics.New(),
	}

	tok, err := tokenizer.New(cfg.Chunker.Encoding)
	if err != nil {
		return nil, err
	}
	seg := chunker.NewSegmenter(tok, chunker.Options{
		MinTokens:     cfg.Chunker.MinTokens,
		TargetSize:    cfg.Chunker.TargetSize,
		OverlapTokens: cfg.Chunker.OverlapTokens,
		UnitCap:       cfg.Chunker.UnitCap,
	}, a.log, a.metrics)
	det := sections.NewDetector(a.log, sections.DefaultStrategies(cfg.Detector.TieBreakWindow)...)
	a.pipeline = ingest.NewPipeline(det, metadata.NewAssigner(metadata.DefaultItemTables()), seg, a.log, a.metrics)

	if !withIndex {
		return a, nil
	}
	if a.embedder, err = newEmbedder(ctx, cfg.Embedder); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if a.store, err = newStore(ctx, cfg.VectorStore); err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	a.ingester = ingest.NewIngester(a.pipeline, a.embedder, a.store, ingest.Options{
		UpsertBatchSize: cfg.Ingest.UpsertBatchSize,
		Concurrency:     cfg.Ingest.Concurrency,
	}, a.log, a.metrics)
	a.engine = retrieval.NewEngine(a.embedder, a.store, cfg.Retrieval.DefaultTopK, a.log, a.metrics)
	a.serveMetrics()

	if len(preload) > 0 {
		if _, err := a.ingest(ctx, preload); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) ingest(ctx context.Context, patterns []string) (ingest.Summary, error) {
	sum, err := a.ingester.IngestPaths(ctx, patterns)
	if errors.Is(err, ingest.ErrNoFilings) {
		return sum, fmt.Errorf("no filings matched %v", patterns)
	}
	return sum, err
}

func (a *app) serveMetrics() {
	if a.cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Str("addr", a.cfg.Metrics.Listen).Msg("metrics listener stopped")
		}
	}()
	a.log.Info().Str("addr", a.cfg.Metrics.Listen).Msg("serving metrics")
}

func (a *app) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close vector store")
		}
	}
}

func newEmbedder(ctx context.Context, cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Dimensions), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		c, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("gemini embedder config missing")
		}
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKeyEnv:  cfg.Gemini.APIKeyEnv,
			Model:      cfg.Gemini.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			TaskType:   cfg.Gemini.TaskType,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
}

func newStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		var key string
		if cfg.Qdrant.APIKeyEnv != "" {
			key = os.Getenv(cfg.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     key,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		if cfg.PGVector == nil {
			return nil, errors.New("pgvector config missing")
		}
		dsn := os.Getenv(cfg.PGVector.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("missing DSN in env %s", cfg.PGVector.DSNEnv)
		}
		s, err := pgvector.NewStorage(ctx, pgvector.Config{DSN: dsn, Table: cfg.PGVector.Table})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		s, err := sqlite.NewStorage(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}
