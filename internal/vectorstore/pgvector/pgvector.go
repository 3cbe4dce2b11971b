// Package pgvector stores chunk vectors in Postgres with the pgvector
// extension. Metadata lives in a jsonb column and filters use containment.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"secrag/internal/domain"
)

type Config struct {
	DSN   string
	Table string
}

// Storage is a pgvector-backed vector store.
type Storage struct {
	pool  *pgxpool.Pool
	table string
}

// NewStorage ensures the vector extension exists and opens a pool whose
// connections know the vector type.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgvector: empty DSN")
	}
	if cfg.Table == "" {
		cfg.Table = "sec_chunks"
	}

	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("create vector extension: %w", err)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	pcfg.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, c)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return &Storage{pool: pool, table: pgx.Identifier{cfg.Table}.Sanitize()}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata  JSONB NOT NULL
		)`, s.table, dimension)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (metadata jsonb_path_ops)`,
		pgx.Identifier{indexName(s.table)}.Sanitize(), s.table)
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("create metadata index: %w", err)
	}
	return nil
}

func indexName(table string) string {
	var b []rune
	for _, r := range table {
		if r != '"' {
			b = append(b, r)
		}
	}
	return string(b) + "_metadata_idx"
}

func (s *Storage) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %s: %w", r.ID, err)
		}
		batch.Queue(q, r.ID, pgv.NewVector(r.Values), meta)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if filter == nil {
		filter = domain.Filter{}
	}
	cond, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	q := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score, metadata
		FROM %s
		WHERE metadata @> $2
		ORDER BY embedding <=> $1, id
		LIMIT $3`, s.table)

	rows, err := s.pool.Query(ctx, q, pgv.NewVector(vector), cond, topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		var (
			m    domain.Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.Score, &meta); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.table))
	return err
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
