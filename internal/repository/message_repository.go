package repository

import (
	"context"
	"time"

	"prodplan-copilot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type MessageRepository struct {
	db       *pgxpool.Pool
	convRepo *ConversationRepository
	logger   *zap.Logger
}

func NewMessageRepository(db *pgxpool.Pool, convRepo *ConversationRepository, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{db: db, convRepo: convRepo, logger: logger}
}

func (r *MessageRepository) List(ctx context.Context, tenantID, conversationID uuid.UUID, limit, offset int) ([]*models.Message, error) {
	// Ownership is enforced by callers via ConversationRepository.Get before
	// reaching here; this query still filters by tenant_id defensively so a
	// bug upstream can never leak another tenant's messages.
	query := squirrel.Select("id", "conversation_id", "tenant_id", "role", "content_text", "content_structured",
		"correlation_id", "latency_ms", "model", "validation_passed", "created_at").
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID, "tenant_id": tenantID}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
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

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TenantID, &role, &m.ContentText, &m.ContentStructured,
			&m.CorrelationID, &m.LatencyMS, &m.Model, &m.ValidationPassed, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.MessageRole(role)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// AppendTurn writes the user message and the copilot message in one
// transaction and bumps the conversation's last_message_at, per spec.md
// §4.10's atomic two-row write and §5's per-conversation ordering guarantee.
func (r *MessageRepository) AppendTurn(ctx context.Context, tenantID, conversationID uuid.UUID, userMsg, copilotMsg *models.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range []*models.Message{userMsg, copilotMsg} {
		m.ConversationID = conversationID
		m.TenantID = tenantID
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}

		query := squirrel.Insert("messages").
			Columns("id", "conversation_id", "tenant_id", "role", "content_text", "content_structured",
				"correlation_id", "latency_ms", "model", "validation_passed", "created_at").
			Values(m.ID, m.ConversationID, m.TenantID, string(m.Role), m.ContentText, m.ContentStructured,
				m.CorrelationID, m.LatencyMS, m.Model, m.ValidationPassed, m.CreatedAt).
			PlaceholderFormat(squirrel.Dollar)

		sql, args, err := query.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}
	}

	if err := r.convRepo.bumpLastMessageAt(ctx, tx, conversationID, copilotMsg.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
