package copilot

import (
	"fmt"
	"strings"

	"prodplan-copilot/internal/models"
)

const (
	fastPathConfidence = 0.95
	fastPathTrustIndex = 0.9
)

type kpiFact struct {
	label string
	value *float64
	key   string
}

// kpiKeywords maps a query keyword to the KPI it names, in the order they
// are checked — first keyword found in the query wins, mirroring the
// original's kpi_mappings lookup.
var kpiKeywords = []struct {
	keyword string
	key     string
}{
	{"oee", "oee"},
	{"availability", "availability"},
	{"performance", "performance"},
	{"fpy", "fpy"},
	{"first pass yield", "fpy"},
	{"rework", "rework_rate"},
	{"quality", "quality"},
}

// resolveFastPath builds a deterministic answer straight from the
// OperationalSnapshot for an intent the Intent Router flagged fast-path
// eligible — no model call, no retrieval, no guardrail pass. Every fact it
// emits cites the snapshot marker it read the number from. It answers the
// one KPI the query names when detectable, falling back to every tracked
// KPI only when the query doesn't name a specific one.
func resolveFastPath(query string, intent models.Intent, snap *models.OperationalSnapshot) *models.CopilotResponse {
	resp := &models.CopilotResponse{
		Type:   models.ResponseAnswer,
		Intent: intent,
	}

	allKPIs := []kpiFact{
		{"Availability", snap.KPIs.Availability, "availability"},
		{"Performance", snap.KPIs.Performance, "performance"},
		{"Quality", snap.KPIs.Quality, "quality"},
		{"OEE", snap.KPIs.OEE, "oee"},
		{"First pass yield", snap.KPIs.FPY, "fpy"},
		{"Rework rate", snap.KPIs.ReworkRate, "rework_rate"},
	}

	kpiFacts := allKPIs
	if detected := detectKPI(query); detected != "" {
		for _, k := range allKPIs {
			if k.key == detected {
				kpiFacts = []kpiFact{k}
				break
			}
		}
	}

	for _, k := range kpiFacts {
		if k.value == nil {
			continue
		}
		resp.Facts = append(resp.Facts, models.Fact{
			Text: fmt.Sprintf("%s is %.1f%%.", k.label, *k.value),
			Citations: []models.Citation{{
				SourceType: models.CitationSourceCalculation,
				Ref:        "[DB:kpi:" + k.key + "]",
				Label:      k.label,
				Confidence: fastPathConfidence,
				TrustIndex: fastPathTrustIndex,
			}},
		})
	}

	if len(resp.Facts) == 0 {
		resp.AddWarning(models.WarningInsufficientEvidence, "no current KPI reading is available for this window")
		resp.Summary = "I don't have a current reading for that metric."
		return resp
	}

	resp.Summary = resp.Facts[0].Text
	return resp
}

// detectKPI returns the KPI key of the first keyword in kpiKeywords that the
// query contains, or "" if it contains none.
func detectKPI(query string) string {
	lower := strings.ToLower(query)
	for _, k := range kpiKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.key
		}
	}
	return ""
}
