package vector

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// PGVectorIndex stores vectors in a PostgreSQL table with a pgvector column and searches by
// cosine distance.
type PGVectorIndex struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
	logger     *zap.Logger
}

// NewPGVectorIndex connects to dsn and ensures the vector extension and table exist.
func NewPGVectorIndex(ctx context.Context, dsn, table string, dimensions int, logger *zap.Logger) (*PGVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	idx := &PGVectorIndex{pool: pool, table: table, dimensions: dimensions, logger: logger}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PGVectorIndex) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, p.table, p.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

// Type returns the index type identifier.
func (p *PGVectorIndex) Type() string {
	return string(IndexTypePGVector)
}

func (p *PGVectorIndex) check(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != p.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), p.dimensions)
		}
	}
	return nil
}

func (p *PGVectorIndex) insert(ctx context.Context, tx pgx.Tx, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, p.table)
	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(query, id, pgvector.NewVector(vectors[i]))
	}
	br := tx.SendBatch(ctx, batch)
	for range ids {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert vector: %w", err)
		}
	}
	return br.Close()
}

// Add upserts vectors with the given IDs.
func (p *PGVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if err := p.check(ids, vectors); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return p.insert(ctx, tx, ids, vectors)
	})
}

// Replace deletes every row and inserts ids and vectors in one transaction.
func (p *PGVectorIndex) Replace(ctx context.Context, ids []string, vectors [][]float32) error {
	if err := p.check(ids, vectors); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", p.table)); err != nil {
			return fmt.Errorf("clear vectors: %w", err)
		}
		return p.insert(ctx, tx, ids, vectors)
	})
}

// Search returns the k nearest vectors by cosine distance. Score is 1 - distance.
func (p *PGVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != p.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), p.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, embedding <=> $1::vector AS distance
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, p.table), pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	var results []*VectorResult
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan similar vector: %w", err)
		}
		results = append(results, &VectorResult{ID: id, Score: 1 - distance})
	}
	return results, rows.Err()
}

// Remove deletes vectors by ID.
func (p *PGVectorIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.table), ids)
	if err != nil {
		return fmt.Errorf("remove vectors: %w", err)
	}
	return nil
}

// Save is a no-op; rows are durable once committed.
func (p *PGVectorIndex) Save(path string) error { return nil }

// Load is a no-op; the table is the index.
func (p *PGVectorIndex) Load(path string) error { return nil }

// Size returns the row count, or 0 when the count cannot be read.
func (p *PGVectorIndex) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var n int
	if err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.table)).Scan(&n); err != nil {
		p.logger.Warn("count vectors failed", zap.Error(err))
		return 0
	}
	return n
}

// Close releases the connection pool.
func (p *PGVectorIndex) Close() error {
	p.pool.Close()
	return nil
}
