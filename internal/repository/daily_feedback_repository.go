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

// DailyFeedbackRepository stores one cached bundle per tenant per date,
// unique on (tenant_id, feedback_date), matching the original's
// CopilotDailyFeedback table.
type DailyFeedbackRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDailyFeedbackRepository(db *pgxpool.Pool, logger *zap.Logger) *DailyFeedbackRepository {
	return &DailyFeedbackRepository{db: db, logger: logger}
}

func (r *DailyFeedbackRepository) Get(ctx context.Context, tenantID uuid.UUID, date time.Time) (*models.DailyFeedback, error) {
	query := squirrel.Select("tenant_id", "feedback_date", "bullets_json", "created_at").
		From("daily_feedback").
		Where(squirrel.Eq{"tenant_id": tenantID, "feedback_date": date.Format("2006-01-02")}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var fb models.DailyFeedback
	err = r.db.QueryRow(ctx, sql, args...).Scan(&fb.TenantID, &fb.FeedbackDate, &fb.BulletsJSON, &fb.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &fb, nil
}

// Upsert replaces whatever bundle exists for the tenant+date, so a rerun of
// the scheduled job is idempotent.
func (r *DailyFeedbackRepository) Upsert(ctx context.Context, fb *models.DailyFeedback) error {
	query := squirrel.Insert("daily_feedback").
		Columns("tenant_id", "feedback_date", "bullets_json", "created_at").
		Values(fb.TenantID, fb.FeedbackDate.Format("2006-01-02"), fb.BulletsJSON, fb.CreatedAt).
		Suffix("ON CONFLICT (tenant_id, feedback_date) DO UPDATE SET bullets_json = EXCLUDED.bullets_json, created_at = EXCLUDED.created_at").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sql, args...)
	return err
}
