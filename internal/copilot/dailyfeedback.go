package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prodplan-copilot/internal/models"
	"prodplan-copilot/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lowOEEThreshold      = 65
	highReworkThreshold  = 8
	staleDataGapCount    = 2
	dailyFeedbackWindowH = 24
)

// DailyFeedbackJob builds one DailyFeedback bundle per tenant per day from
// real snapshot conditions — a low OEE reading, an elevated rework rate, or
// enough data gaps to call the window's KPIs suspect — rather than the
// placeholder bullet list the system it's modeled on produced.
type DailyFeedbackJob struct {
	contextBuilder *ContextBuilder
	store          *repository.DailyFeedbackRepository
	logger         *zap.Logger
}

func NewDailyFeedbackJob(cb *ContextBuilder, store *repository.DailyFeedbackRepository, logger *zap.Logger) *DailyFeedbackJob {
	return &DailyFeedbackJob{contextBuilder: cb, store: store, logger: logger}
}

// RunForTenant computes today's bundle for one tenant and upserts it, so a
// rerun (manual or a missed schedule tick) is idempotent.
func (j *DailyFeedbackJob) RunForTenant(ctx context.Context, tenantID uuid.UUID) error {
	snap := j.contextBuilder.Build(ctx, tenantID, dailyFeedbackWindowH, "")
	bullets := buildBullets(snap)

	bulletsJSON, err := json.Marshal(bullets)
	if err != nil {
		return NewError(KindPersistenceFailed, "failed to encode daily feedback bullets")
	}

	fb := &models.DailyFeedback{
		TenantID:     tenantID,
		FeedbackDate: time.Now().UTC().Truncate(24 * time.Hour),
		BulletsJSON:  string(bulletsJSON),
		Bullets:      bullets,
		CreatedAt:    time.Now().UTC(),
	}

	if err := j.store.Upsert(ctx, fb); err != nil {
		j.logger.Error("failed to persist daily feedback", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		return NewError(KindPersistenceFailed, "failed to store daily feedback")
	}
	return nil
}

func buildBullets(snap *models.OperationalSnapshot) []models.DailyFeedbackBullet {
	var bullets []models.DailyFeedbackBullet

	if snap.KPIs.OEE != nil && *snap.KPIs.OEE < lowOEEThreshold {
		bullets = append(bullets, models.DailyFeedbackBullet{
			Severity: models.FeedbackWarn,
			Title:    "OEE below target",
			Text:     fmt.Sprintf("OEE for the last 24 hours was %.1f%%, below the %.0f%% target.", *snap.KPIs.OEE, float64(lowOEEThreshold)),
			Citations: []models.Citation{calculationCitation("[DB:kpi:oee]", "OEE", snap.TrustIndex)},
		})
	}

	if snap.KPIs.ReworkRate != nil && *snap.KPIs.ReworkRate > highReworkThreshold {
		bullets = append(bullets, models.DailyFeedbackBullet{
			Severity: models.FeedbackWarn,
			Title:    "Rework rate elevated",
			Text:     fmt.Sprintf("Rework rate reached %.1f%%, above the %.0f%% threshold.", *snap.KPIs.ReworkRate, float64(highReworkThreshold)),
			Citations: []models.Citation{calculationCitation("[DB:kpi:rework_rate]", "Rework rate", snap.TrustIndex)},
		})
	}

	if len(snap.RecentErrors) > 0 {
		var critical int
		for _, e := range snap.RecentErrors {
			if e.Severity == models.SeverityCritical {
				critical++
			}
		}
		if critical > 0 {
			bullets = append(bullets, models.DailyFeedbackBullet{
				Severity: models.FeedbackCritical,
				Title:    "Critical quality events",
				Text:     fmt.Sprintf("%d critical quality event(s) were recorded in the last 24 hours.", critical),
				Citations: []models.Citation{calculationCitation("[DB:error:count]", "Critical quality events", snap.TrustIndex)},
			})
		}
	}

	if len(snap.DataGaps) >= staleDataGapCount {
		bullets = append(bullets, models.DailyFeedbackBullet{
			Severity:  models.FeedbackWarn,
			Title:     "Incomplete operational data",
			Text:      fmt.Sprintf("%d data source(s) were unavailable while building today's summary; some figures may be incomplete.", len(snap.DataGaps)),
			Citations: []models.Citation{dataGapCitation("[DB:data_gap:count]", "Data gaps")},
		})
	}

	if len(bullets) == 0 {
		bullets = append(bullets, models.DailyFeedbackBullet{
			Severity: models.FeedbackInfo,
			Title:    "No notable deviations",
			Text:     "All tracked KPIs were within normal range for the last 24 hours.",
		})
	}

	return bullets
}
