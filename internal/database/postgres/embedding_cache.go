package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheRepository persists derived template embeddings with pgvector.
type EmbeddingCacheRepository struct {
	pool *Pool
}

// NewEmbeddingCacheRepository creates a new PostgreSQL embedding cache repository.
func NewEmbeddingCacheRepository(pool *Pool) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{pool: pool}
}

// GetEmbedding returns the cached embedding, or database.ErrNotFound.
func (r *EmbeddingCacheRepository) GetEmbedding(ctx context.Context, faceHash, model string) ([]float32, error) {
	var vec pgvector.Vector
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT embedding FROM template_embeddings WHERE face_hash = $1 AND model = $2`,
		faceHash, model).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cached embedding: %w", err)
	}
	return vec.Slice(), nil
}

// SaveEmbedding upserts a cached embedding.
func (r *EmbeddingCacheRepository) SaveEmbedding(ctx context.Context, e database.CachedEmbedding) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO template_embeddings (face_hash, model, dim, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (face_hash, model) DO UPDATE SET dim = EXCLUDED.dim, embedding = EXCLUDED.embedding`,
		e.FaceHash, e.Model, len(e.Embedding), pgvector.NewVector(e.Embedding))
	if err != nil {
		return fmt.Errorf("save cached embedding: %w", err)
	}
	return nil
}
