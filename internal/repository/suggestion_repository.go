package repository

import (
	"context"

	"prodplan-copilot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SuggestionRepository persists the audit trail every answered request
// writes unconditionally, per spec.md §3's SuggestionAudit entity.
type SuggestionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSuggestionRepository(db *pgxpool.Pool, logger *zap.Logger) *SuggestionRepository {
	return &SuggestionRepository{db: db, logger: logger}
}

func (r *SuggestionRepository) Create(ctx context.Context, audit *models.SuggestionAudit) error {
	query := squirrel.Insert("suggestion_audits").
		Columns("suggestion_id", "tenant_id", "user_id", "query_text", "intent", "response_json",
			"prompt_hash", "response_hash", "created_at").
		Values(audit.SuggestionID, audit.TenantID, audit.UserID, audit.QueryText, string(audit.Intent),
			audit.ResponseJSON, audit.PromptHash, audit.ResponseHash, audit.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *SuggestionRepository) GetByID(ctx context.Context, tenantID, suggestionID uuid.UUID) (*models.SuggestionAudit, error) {
	query := squirrel.Select("suggestion_id", "tenant_id", "user_id", "query_text", "intent", "response_json",
		"prompt_hash", "response_hash", "created_at").
		From("suggestion_audits").
		Where(squirrel.Eq{"suggestion_id": suggestionID, "tenant_id": tenantID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var audit models.SuggestionAudit
	var intent string
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&audit.SuggestionID, &audit.TenantID, &audit.UserID, &audit.QueryText, &intent, &audit.ResponseJSON,
		&audit.PromptHash, &audit.ResponseHash, &audit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	audit.Intent = models.Intent(intent)
	return &audit, nil
}
