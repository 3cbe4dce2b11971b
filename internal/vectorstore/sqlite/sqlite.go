// Package sqlite is a single-file vector store. Metadata is kept as indexed
// columns so exact-match filters run in SQL; similarity is computed in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"secrag/internal/domain"
	"secrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id             TEXT PRIMARY KEY,
	ticker         TEXT NOT NULL,
	form_type      TEXT NOT NULL,
	filing_date    TEXT NOT NULL,
	fiscal_year    INTEGER NOT NULL,
	fiscal_quarter INTEGER NOT NULL,
	item_id        TEXT NOT NULL,
	chunk_type     TEXT NOT NULL,
	metadata       TEXT NOT NULL,
	embedding      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_filing ON chunks (ticker, form_type, fiscal_year);
CREATE TABLE IF NOT EXISTS store_info (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);`

// filterable lists the metadata fields that have their own column.
var filterable = map[string]bool{
	domain.FieldTicker:        true,
	domain.FieldFormType:      true,
	domain.FieldFilingDate:    true,
	domain.FieldFiscalYear:    true,
	domain.FieldFiscalQuarter: true,
	domain.FieldItemLabel:     true,
	domain.FieldChunkType:     true,
}

type Storage struct {
	db        *sql.DB
	dimension int
}

func NewStorage(path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM store_info WHERE k = 'dimension'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO store_info (k, v) VALUES ('dimension', ?)`, fmt.Sprint(dimension)); err != nil {
			return fmt.Errorf("record dimension: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read dimension: %w", err)
	case stored != fmt.Sprint(dimension):
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("store holds %s-dimensional vectors, got %d", stored, dimension)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE store_info SET v = ? WHERE k = 'dimension'`, fmt.Sprint(dimension)); err != nil {
			return err
		}
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, ticker, form_type, filing_date, fiscal_year, fiscal_quarter,
			item_id, chunk_type, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			ticker = excluded.ticker,
			form_type = excluded.form_type,
			filing_date = excluded.filing_date,
			fiscal_year = excluded.fiscal_year,
			fiscal_quarter = excluded.fiscal_quarter,
			item_id = excluded.item_id,
			chunk_type = excluded.chunk_type,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if s.dimension != 0 && len(r.Values) != s.dimension {
			return fmt.Errorf("record %s: vector dimension mismatch: %d != %d", r.ID, len(r.Values), s.dimension)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return err
		}
		m := r.Metadata
		if _, err := stmt.ExecContext(ctx, r.ID, m.Ticker, m.FormType, m.FilingDate,
			m.FiscalYear, m.FiscalQuarter, m.ItemLabel, m.ChunkType, string(meta), encode(r.Values)); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Query(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, metadata, embedding FROM chunks`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var (
			id, meta string
			blob     []byte
		)
		if err := rows.Scan(&id, &meta, &blob); err != nil {
			return nil, err
		}
		m := domain.Match{ID: id, Score: vectorstore.Cosine(vector, decode(blob))}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", id, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.RankTopK(matches, topK), nil
}

func whereClause(f domain.Filter) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		if !filterable[k] {
			return "", nil, fmt.Errorf("field %q cannot be filtered", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		args[i] = f[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decode(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
