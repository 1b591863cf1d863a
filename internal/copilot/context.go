package copilot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"prodplan-copilot/internal/models"
	"prodplan-copilot/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	snapshotSoftCapBytes = 8 * 1024
	snapshotHardCapBytes = 16 * 1024
)

// ContextBuilder assembles an OperationalSnapshot from the domain tables a
// factory-floor question actually needs — KPIs, order status, recent
// quality events, top WIP phases. Every sub-query is best-effort: a failed
// one becomes a DataGap entry instead of failing the whole snapshot, since
// a partial answer beats no answer when one collaborator table is down.
type ContextBuilder struct {
	domain *repository.DomainRepository
	logger *zap.Logger
}

func NewContextBuilder(domain *repository.DomainRepository, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{domain: domain, logger: logger}
}

// Build assembles a snapshot covering [now-windowHours, now], optionally
// scoped to one entity (an order id or phase name) when entityHint is
// non-empty. It never returns an error: a collaborator failure degrades that
// one section into a DataGap rather than aborting the whole request, per
// spec.md §4.3.
func (b *ContextBuilder) Build(ctx context.Context, tenantID uuid.UUID, windowHours int, entityHint string) *models.OperationalSnapshot {
	now := time.Now().UTC()
	windowStart := now.Add(-time.Duration(windowHours) * time.Hour)

	snap := &models.OperationalSnapshot{
		TenantID:    tenantID.String(),
		WindowStart: windowStart,
		WindowEnd:   now,
	}

	var kpiFieldCount, kpiNonNilCount int

	if kpis, err := b.domain.LatestKPIs(ctx, tenantID, windowStart, now); err != nil {
		b.logger.Warn("kpi read failed", zap.Error(err))
		snap.DataGaps = append(snap.DataGaps, models.DataGap{Source: "kpi_readings", Reason: "query failed"})
	} else {
		snap.KPIs = kpis
		kpiFieldCount, kpiNonNilCount = countKPIFields(kpis)
	}

	if orders, err := b.domain.OrdersByStatus(ctx, tenantID, windowStart, 50); err != nil {
		b.logger.Warn("order status read failed", zap.Error(err))
		snap.DataGaps = append(snap.DataGaps, models.DataGap{Source: "production_orders", Reason: "query failed"})
	} else {
		snap.OrdersByStatus = orders
	}

	if errs, err := b.domain.RecentErrors(ctx, tenantID, windowStart, 100); err != nil {
		b.logger.Warn("quality event read failed", zap.Error(err))
		snap.DataGaps = append(snap.DataGaps, models.DataGap{Source: "quality_events", Reason: "query failed"})
	} else {
		snap.RecentErrors = errs
	}

	if phases, err := b.domain.TopPhasesByWIP(ctx, tenantID, 50, entityHint); err != nil {
		b.logger.Warn("wip phase read failed", zap.Error(err))
		snap.DataGaps = append(snap.DataGaps, models.DataGap{Source: "production_orders.wip", Reason: "query failed"})
	} else {
		snap.TopPhasesByWIP = phases
	}

	if employees, err := b.domain.TopEmployeesByAllocation(ctx, tenantID, 50, entityHint); err != nil {
		b.logger.Warn("employee allocation read failed", zap.Error(err))
		snap.DataGaps = append(snap.DataGaps, models.DataGap{Source: "production_orders.allocations", Reason: "query failed"})
	} else {
		snap.TopEmployees = employees
	}

	latest, err := b.domain.MostRecentReadingAt(ctx, tenantID, windowStart, now)
	if err != nil {
		b.logger.Warn("recency read failed", zap.Error(err))
	}

	snap.TrustIndex = computeTrustIndex(snap, latest, now, windowHours, kpiFieldCount, kpiNonNilCount)

	return snap
}

// computeTrustIndex scores a snapshot on three factors, averaged equally,
// per spec.md §4.3: freshness (how recent the latest KPI row is relative to
// the window), integrity (a cross-query sum-consistency check between the
// WIP-phase count and the orders-in-progress count), and completeness (the
// fraction of KPI fields that came back non-nil).
func computeTrustIndex(snap *models.OperationalSnapshot, latestReading *time.Time, now time.Time, windowHours int, kpiFieldCount, kpiNonNilCount int) float64 {
	freshness := 0.0
	if latestReading != nil && windowHours > 0 {
		age := now.Sub(*latestReading).Hours()
		freshness = 1 - age/float64(windowHours)
		if freshness < 0 {
			freshness = 0
		}
		if freshness > 1 {
			freshness = 1
		}
	}

	integrity := 1.0
	if len(snap.TopPhasesByWIP) > 0 || snap.OrdersByStatus != nil {
		wipTotal := 0
		for _, p := range snap.TopPhasesByWIP {
			wipTotal += p.Count
		}
		inProgress := snap.OrdersByStatus["in_progress"]
		if inProgress > 0 {
			diff := wipTotal - inProgress
			if diff < 0 {
				diff = -diff
			}
			integrity = 1 - float64(diff)/float64(inProgress)
			if integrity < 0 {
				integrity = 0
			}
		}
	}

	completeness := 0.0
	if kpiFieldCount > 0 {
		completeness = float64(kpiNonNilCount) / float64(kpiFieldCount)
	}

	return (freshness + integrity + completeness) / 3
}

func countKPIFields(k models.KPISet) (total, nonNil int) {
	fields := []*float64{k.Availability, k.Performance, k.Quality, k.OEE, k.FPY, k.ReworkRate}
	total = len(fields)
	for _, f := range fields {
		if f != nil {
			nonNil++
		}
	}
	return total, nonNil
}

// Render flattens a snapshot into the bounded text block the Prompt
// Renderer inlines into the LLM prompt, marking every fact with a
// "[DB:<kind>:<ref>]" citation marker so the Guardrail Validator can later
// confirm a citation actually traces back to something in the snapshot.
func (b *ContextBuilder) Render(snap *models.OperationalSnapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Window: %s to %s\n\n", snap.WindowStart.Format(time.RFC3339), snap.WindowEnd.Format(time.RFC3339))

	sb.WriteString("KPIs:\n")
	writeKPILine(&sb, "availability", snap.KPIs.Availability)
	writeKPILine(&sb, "performance", snap.KPIs.Performance)
	writeKPILine(&sb, "quality", snap.KPIs.Quality)
	writeKPILine(&sb, "oee", snap.KPIs.OEE)
	writeKPILine(&sb, "fpy", snap.KPIs.FPY)
	writeKPILine(&sb, "rework_rate", snap.KPIs.ReworkRate)
	sb.WriteString("\n")

	if len(snap.OrdersByStatus) > 0 {
		sb.WriteString("Orders by status:\n")
		for status, count := range snap.OrdersByStatus {
			fmt.Fprintf(&sb, "- %s: %d [DB:order_status:%s]\n", status, count, status)
		}
		sb.WriteString("\n")
	}

	if len(snap.TopPhasesByWIP) > 0 {
		sb.WriteString("Top phases by WIP:\n")
		for _, p := range snap.TopPhasesByWIP {
			fmt.Fprintf(&sb, "- %s: %d in progress [DB:wip_phase:%s]\n", p.Phase, p.Count, p.Phase)
		}
		sb.WriteString("\n")
	}

	if len(snap.TopEmployees) > 0 {
		sb.WriteString("Top employees by allocation:\n")
		for _, e := range snap.TopEmployees {
			fmt.Fprintf(&sb, "- %s: %d open orders [DB:employee_allocation:%s]\n", e.Name, e.Count, e.Name)
		}
		sb.WriteString("\n")
	}

	if len(snap.RecentErrors) > 0 {
		sb.WriteString("Recent quality events:\n")
		for _, e := range snap.RecentErrors {
			fmt.Fprintf(&sb, "- [%s] %s at %s [DB:error:%s]\n", e.Severity, e.Phase, e.Timestamp.Format(time.RFC3339), e.ID)
		}
		sb.WriteString("\n")
	}

	if len(snap.DataGaps) > 0 {
		sb.WriteString("Data gaps (do not fabricate these):\n")
		for _, g := range snap.DataGaps {
			fmt.Fprintf(&sb, "- %s: %s\n", g.Source, g.Reason)
		}
	}

	out := sb.String()
	if len(out) > snapshotHardCapBytes {
		out = out[:snapshotHardCapBytes] + "\n...[truncated]"
	}
	return out
}

func writeKPILine(sb *strings.Builder, name string, v *float64) {
	if v == nil {
		fmt.Fprintf(sb, "- %s: unavailable\n", name)
		return
	}
	fmt.Fprintf(sb, "- %s: %.2f [DB:kpi:%s]\n", name, *v, name)
}
