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

// DomainRepository is the concrete domain reader the Context Builder depends
// on directly (there is no interface in between). It stands in for the ERP's
// production-order, quality-error and allocation modules, which are out of
// scope and normally live behind their own services; here they are backed
// by three tables this repository owns outright (kpi_readings,
// production_orders, quality_events) so the snapshot-building logic has
// something real to query in development.
type DomainRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDomainRepository(db *pgxpool.Pool, logger *zap.Logger) *DomainRepository {
	return &DomainRepository{db: db, logger: logger}
}

// KPIReading is one timestamped metric sample; LatestKPIs picks the most
// recent sample per metric within the window.
type KPIReading struct {
	TenantID   uuid.UUID `db:"tenant_id"`
	Metric     string    `db:"metric"`
	Value      float64   `db:"value"`
	RecordedAt time.Time `db:"recorded_at"`
}

func (r *DomainRepository) LatestKPIs(ctx context.Context, tenantID uuid.UUID, windowStart, windowEnd time.Time) (models.KPISet, error) {
	query := squirrel.Select("DISTINCT ON (metric) metric", "value").
		From("kpi_readings").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"recorded_at": windowStart}).
		Where(squirrel.LtOrEq{"recorded_at": windowEnd}).
		OrderBy("metric", "recorded_at DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return models.KPISet{}, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return models.KPISet{}, err
	}
	defer rows.Close()

	var kpis models.KPISet
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return models.KPISet{}, err
		}
		v := value
		switch metric {
		case "availability":
			kpis.Availability = &v
		case "performance":
			kpis.Performance = &v
		case "quality":
			kpis.Quality = &v
		case "oee":
			kpis.OEE = &v
		case "fpy":
			kpis.FPY = &v
		case "rework_rate":
			kpis.ReworkRate = &v
		}
	}
	return kpis, rows.Err()
}

// OrdersByStatus returns at most `limit` status groups, per spec.md §4.3's
// bound on the recent-orders query.
func (r *DomainRepository) OrdersByStatus(ctx context.Context, tenantID uuid.UUID, windowStart time.Time, limit int) (map[string]int, error) {
	query := squirrel.Select("status", "count(*) as cnt").
		From("production_orders").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"updated_at": windowStart}).
		GroupBy("status").
		OrderBy("cnt DESC").
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

	result := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	return result, rows.Err()
}

// RecentErrors returns at most `limit` quality/process error events, per
// spec.md §4.3's 100-row bound.
func (r *DomainRepository) RecentErrors(ctx context.Context, tenantID uuid.UUID, windowStart time.Time, limit int) ([]models.OperationalError, error) {
	query := squirrel.Select("id", "phase", "severity", "occurred_at").
		From("quality_events").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"occurred_at": windowStart}).
		OrderBy("occurred_at DESC").
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

	var errs []models.OperationalError
	for rows.Next() {
		var e models.OperationalError
		var severity string
		if err := rows.Scan(&e.ID, &e.Phase, &severity, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Severity = models.ErrorSeverity(severity)
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// DistinctTenantIDs enumerates tenants with at least one KPI reading, used
// by the daily feedback scheduler to discover which tenants to run for —
// this core has no tenant registry of its own.
func (r *DomainRepository) DistinctTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := squirrel.Select("DISTINCT tenant_id").From("kpi_readings").PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TopPhasesByWIP returns at most `limit` phases ordered by current
// work-in-progress count, per spec.md §4.3's 50-row allocations bound. When
// entityHint is non-empty it narrows the count to orders touching that
// phase or order id, the same entity-scoping a drill-down question implies.
func (r *DomainRepository) TopPhasesByWIP(ctx context.Context, tenantID uuid.UUID, limit int, entityHint string) ([]models.PhaseWIP, error) {
	q := squirrel.Select("phase", "count(*) as cnt").
		From("production_orders").
		Where(squirrel.Eq{"tenant_id": tenantID, "status": "in_progress"})
	if entityHint != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"phase": entityHint},
			squirrel.Eq{"order_id": entityHint},
		})
	}
	query := q.GroupBy("phase").
		OrderBy("cnt DESC").
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

	var phases []models.PhaseWIP
	for rows.Next() {
		var p models.PhaseWIP
		if err := rows.Scan(&p.Phase, &p.Count); err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// TopEmployeesByAllocation returns at most `limit` employees ordered by how
// many open orders are currently assigned to them — the HR-sensitive half of
// the allocations query, grounded in context_builder.py's
// allocations.top_employees shape. Its output is the roster
// redactEmployeeNames masks against for non-HR callers, so it is queried
// even though most callers never see it rendered.
func (r *DomainRepository) TopEmployeesByAllocation(ctx context.Context, tenantID uuid.UUID, limit int, entityHint string) ([]models.EmployeeAllocation, error) {
	q := squirrel.Select("assigned_to", "count(*) as cnt").
		From("production_orders").
		Where(squirrel.Eq{"tenant_id": tenantID, "status": "in_progress"}).
		Where(squirrel.NotEq{"assigned_to": ""})
	if entityHint != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"phase": entityHint},
			squirrel.Eq{"order_id": entityHint},
		})
	}
	query := q.GroupBy("assigned_to").
		OrderBy("cnt DESC").
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

	var employees []models.EmployeeAllocation
	for rows.Next() {
		var e models.EmployeeAllocation
		if err := rows.Scan(&e.Name, &e.Count); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// MostRecentReadingAt returns the newest kpi_readings timestamp in the
// window, used to score data freshness for the snapshot trust index. A nil
// result means no reading fell inside the window at all.
func (r *DomainRepository) MostRecentReadingAt(ctx context.Context, tenantID uuid.UUID, windowStart, windowEnd time.Time) (*time.Time, error) {
	query := squirrel.Select("max(recorded_at)").
		From("kpi_readings").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"recorded_at": windowStart}).
		Where(squirrel.LtOrEq{"recorded_at": windowEnd}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var latest *time.Time
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&latest); err != nil {
		return nil, err
	}
	return latest, nil
}
