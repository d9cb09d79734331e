package embedding

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"magictunnel/pkg/mcperrors"
)

// PostgresIndex is the pgvector-backed Index implementation, for
// deployments that already run PostgreSQL for the database executor
// (SPEC_FULL.md §4.7), grounded on MrWong99-glyphoxa's
// pkg/memory/postgres.SemanticIndexImpl: one table, an HNSW index, cosine
// distance ordering via the `<=>` operator.
type PostgresIndex struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresIndex wraps an existing pool. dim must match the vector column
// width created by EnsureSchema.
func NewPostgresIndex(pool *pgxpool.Pool, dim int) *PostgresIndex {
	return &PostgresIndex{pool: pool, dim: dim}
}

// EnsureSchema creates the tool_embeddings table and its HNSW index if they
// don't already exist. Callers run this once at startup.
func (p *PostgresIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tool_embeddings (
			tool_name    TEXT PRIMARY KEY,
			fingerprint  TEXT NOT NULL,
			model_id     TEXT NOT NULL,
			embedding    vector(%d) NOT NULL,
			indexed_text TEXT NOT NULL
		)`, p.dim),
		"CREATE INDEX IF NOT EXISTS tool_embeddings_hnsw ON tool_embeddings USING hnsw (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return mcperrors.Wrap(mcperrors.Internal, err, "ensuring embedding schema")
		}
	}
	return nil
}

func (p *PostgresIndex) Upsert(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO tool_embeddings (tool_name, fingerprint, model_id, embedding, indexed_text)
		VALUES ($1, $2, $3, $4, '')
		ON CONFLICT (tool_name) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			model_id    = EXCLUDED.model_id,
			embedding   = EXCLUDED.embedding`
	_, err := p.pool.Exec(ctx, q, rec.ToolName, rec.Fingerprint, rec.ModelID, pgvector.NewVector(rec.Vector))
	if err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "upserting embedding")
	}
	return nil
}

// IndexLexical stores the indexed text alongside the embedding row so
// LexicalSearch can fall back to a plain ILIKE/tsquery scan. Call after
// Upsert for the same tool name.
func (p *PostgresIndex) IndexLexical(ctx context.Context, toolName, text string) error {
	_, err := p.pool.Exec(ctx, `UPDATE tool_embeddings SET indexed_text = $2 WHERE tool_name = $1`, toolName, text)
	if err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "indexing lexical text")
	}
	return nil
}

func (p *PostgresIndex) Delete(ctx context.Context, toolName string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM tool_embeddings WHERE tool_name = $1`, toolName)
	if err != nil {
		return mcperrors.Wrap(mcperrors.Internal, err, "deleting embedding")
	}
	return nil
}

func (p *PostgresIndex) Get(ctx context.Context, toolName string) (Record, bool, error) {
	var rec Record
	var vec pgvector.Vector
	err := p.pool.QueryRow(ctx,
		`SELECT tool_name, fingerprint, model_id, embedding FROM tool_embeddings WHERE tool_name = $1`,
		toolName,
	).Scan(&rec.ToolName, &rec.Fingerprint, &rec.ModelID, &vec)
	if err == pgx.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, mcperrors.Wrap(mcperrors.Internal, err, "getting embedding")
	}
	rec.Vector = vec.Slice()
	rec.Dim = len(rec.Vector)
	return rec, true, nil
}

func (p *PostgresIndex) Names(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT tool_name FROM tool_embeddings ORDER BY tool_name`)
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.Internal, err, "listing embedding names")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *PostgresIndex) Search(ctx context.Context, query []float32, topK int) ([]ScoredTool, error) {
	const q = `
		SELECT tool_name, 1 - (embedding <=> $1) AS similarity
		FROM   tool_embeddings
		ORDER  BY embedding <=> $1, tool_name
		LIMIT  $2`
	rows, err := p.pool.Query(ctx, q, pgvector.NewVector(query), topK)
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.Internal, err, "searching embeddings")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScoredTool, error) {
		var st ScoredTool
		err := row.Scan(&st.ToolName, &st.Score)
		return st, err
	})
}

func (p *PostgresIndex) LexicalSearch(ctx context.Context, query string, topK int) ([]ScoredTool, error) {
	const q = `
		SELECT tool_name, ts_rank(to_tsvector('english', indexed_text), plainto_tsquery('english', $1)) AS rank
		FROM   tool_embeddings
		WHERE  to_tsvector('english', indexed_text) @@ plainto_tsquery('english', $1)
		ORDER  BY rank DESC, tool_name
		LIMIT  $2`
	rows, err := p.pool.Query(ctx, q, query, topK)
	if err != nil {
		return nil, mcperrors.Wrap(mcperrors.Internal, err, "lexical searching embeddings")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScoredTool, error) {
		var st ScoredTool
		err := row.Scan(&st.ToolName, &st.Score)
		return st, err
	})
}
