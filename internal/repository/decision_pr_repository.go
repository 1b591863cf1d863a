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

// DecisionPRRepository backs the CREATE_DECISION_PR action's lifecycle —
// an action produced by the core is always a proposal, never an execution,
// so the row this creates starts PENDING and waits on an external approver.
type DecisionPRRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDecisionPRRepository(db *pgxpool.Pool, logger *zap.Logger) *DecisionPRRepository {
	return &DecisionPRRepository{db: db, logger: logger}
}

func (r *DecisionPRRepository) Create(ctx context.Context, tenantID, suggestionID uuid.UUID, title, description, payloadJSON string) (*models.DecisionPR, error) {
	pr := &models.DecisionPR{
		ID:           uuid.New(),
		TenantID:     tenantID,
		SuggestionID: suggestionID,
		Title:        title,
		Description:  description,
		PayloadJSON:  payloadJSON,
		Status:       models.DecisionPRPending,
		CreatedAt:    time.Now(),
	}

	query := squirrel.Insert("decision_prs").
		Columns("id", "tenant_id", "suggestion_id", "title", "description", "payload_json", "status", "created_at").
		Values(pr.ID, pr.TenantID, pr.SuggestionID, pr.Title, pr.Description, pr.PayloadJSON, string(pr.Status), pr.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}
	return pr, nil
}

func (r *DecisionPRRepository) Approve(ctx context.Context, tenantID, id, approverID uuid.UUID) error {
	return r.setStatus(ctx, tenantID, id, models.DecisionPRApproved, &approverID)
}

func (r *DecisionPRRepository) Reject(ctx context.Context, tenantID, id, approverID uuid.UUID) error {
	return r.setStatus(ctx, tenantID, id, models.DecisionPRRejected, &approverID)
}

func (r *DecisionPRRepository) setStatus(ctx context.Context, tenantID, id uuid.UUID, status models.DecisionPRStatus, approverID *uuid.UUID) error {
	now := time.Now()
	query := squirrel.Update("decision_prs").
		Set("status", string(status)).
		Set("approver_id", approverID).
		Set("approved_at", now).
		Where(squirrel.Eq{"id": id, "tenant_id": tenantID}).
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
