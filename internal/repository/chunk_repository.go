package repository

import (
	"context"
	"fmt"

	"prodplan-copilot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ChunkRepository persists DocumentChunks and answers the tenant-scoped
// candidate lookups the hybrid ranker needs. It does not rank results
// itself — that belongs to the retrieval component, which combines this
// repository's candidate set with in-memory lexical/vector scoring.
type ChunkRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewChunkRepository(db *pgxpool.Pool, logger *zap.Logger) *ChunkRepository {
	return &ChunkRepository{db: db, logger: logger}
}

func (r *ChunkRepository) Create(ctx context.Context, chunk *models.DocumentChunk) error {
	query := squirrel.Insert("document_chunks").
		Columns("id", "tenant_id", "source", "ordinal", "text", "embedding", "tags", "created_at").
		Values(chunk.ID, chunk.TenantID, chunk.Source, chunk.Ordinal, chunk.Text,
			pgtype.FlatArray[float32](chunk.Embedding), chunk.Tags, chunk.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// Candidates returns every chunk for the tenant up to limit, for the
// retrieval component to lexically/vector-score in memory. limit plays the
// role of spec.md's "candidate set size before rerank" (4k); it is the
// caller's responsibility to pick a sane bound.
func (r *ChunkRepository) Candidates(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.DocumentChunk, error) {
	query := squirrel.Select("id", "tenant_id", "source", "ordinal", "text", "embedding", "tags", "created_at").
		From("document_chunks").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunks(rows)
}

// GetByID loads one chunk by id, scoped to the tenant; it returns nil, nil
// when no such chunk belongs to the tenant. The Guardrail does not call it:
// it grounds citations against the chunks retrieved for the request.
func (r *ChunkRepository) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.DocumentChunk, error) {
	query := squirrel.Select("id", "tenant_id", "source", "ordinal", "text", "embedding", "tags", "created_at").
		From("document_chunks").
		Where(squirrel.Eq{"id": id, "tenant_id": tenantID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var chunk models.DocumentChunk
	var embedding pgtype.FlatArray[float32]
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&chunk.ID, &chunk.TenantID, &chunk.Source, &chunk.Ordinal, &chunk.Text, &embedding, &chunk.Tags, &chunk.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	chunk.Embedding = []float32(embedding)
	return &chunk, nil
}

func scanChunks(rows pgx.Rows) ([]*models.DocumentChunk, error) {
	var chunks []*models.DocumentChunk
	for rows.Next() {
		var chunk models.DocumentChunk
		var embedding pgtype.FlatArray[float32]
		if err := rows.Scan(&chunk.ID, &chunk.TenantID, &chunk.Source, &chunk.Ordinal, &chunk.Text, &embedding, &chunk.Tags, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Embedding = []float32(embedding)
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}
