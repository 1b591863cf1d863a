package repository

import (
	"context"
	"time"

	"prodplan-copilot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned for any lookup scoped by tenant that finds
// nothing — including a conversation id that belongs to another tenant.
// Callers must never distinguish "doesn't exist" from "not yours".
var ErrNotFound = pgx.ErrNoRows

type ConversationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewConversationRepository(db *pgxpool.Pool, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, logger: logger}
}

func (r *ConversationRepository) Create(ctx context.Context, tenantID, userID uuid.UUID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
	}

	query := squirrel.Insert("conversations").
		Columns("id", "tenant_id", "user_id", "title", "created_at", "is_archived").
		Values(conv.ID, conv.TenantID, conv.UserID, conv.Title, conv.CreatedAt, false).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get enforces tenant ownership: a conversation id from another tenant
// returns ErrNotFound, never a row, never a distinguishable "exists but
// forbidden" error.
func (r *ConversationRepository) Get(ctx context.Context, tenantID, conversationID uuid.UUID) (*models.Conversation, error) {
	query := squirrel.Select("id", "tenant_id", "user_id", "title", "created_at", "last_message_at", "is_archived").
		From("conversations").
		Where(squirrel.Eq{"id": conversationID, "tenant_id": tenantID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&conv.ID, &conv.TenantID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.LastMessageAt, &conv.IsArchived,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) List(ctx context.Context, tenantID, userID uuid.UUID, limit, offset int, archived *bool) ([]*models.Conversation, error) {
	q := squirrel.Select("id", "tenant_id", "user_id", "title", "created_at", "last_message_at", "is_archived").
		From("conversations").
		Where(squirrel.Eq{"tenant_id": tenantID, "user_id": userID})
	if archived != nil {
		q = q.Where(squirrel.Eq{"is_archived": *archived})
	}
	q = q.OrderBy("last_message_at DESC NULLS LAST", "created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.TenantID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.LastMessageAt, &conv.IsArchived); err != nil {
			return nil, err
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

func (r *ConversationRepository) Rename(ctx context.Context, tenantID, conversationID uuid.UUID, title string) error {
	query := squirrel.Update("conversations").
		Set("title", title).
		Where(squirrel.Eq{"id": conversationID, "tenant_id": tenantID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) Archive(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	query := squirrel.Update("conversations").
		Set("is_archived", true).
		Where(squirrel.Eq{"id": conversationID, "tenant_id": tenantID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepository) bumpLastMessageAt(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID, at time.Time) error {
	query := squirrel.Update("conversations").
		Set("last_message_at", at).
		Where(squirrel.Eq{"id": conversationID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}
