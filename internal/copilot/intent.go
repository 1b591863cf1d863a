package copilot

import (
	"strings"

	"prodplan-copilot/internal/models"
)

// intentRule pairs a priority with the keywords that trigger it. Rules are
// evaluated in priority order (lowest number first); the first match wins,
// mirroring spec.md §4.4's table rather than a bag-of-words classifier.
type intentRule struct {
	priority int
	intent   models.Intent
	keywords []string
}

// kpiNouns and temporalWords back the kpi_current rule's conjunction, per
// spec.md §4.4 priority-1: "{current, now, today} + any KPI name", not a
// bare KPI mention on its own.
var kpiNouns = []string{"oee", "fpy", "availability", "performance", "quality", "rework"}
var temporalWords = []string{"current", "now", "today"}

// explanationCues are the "why"-style words that mark a question as asking
// for a cause rather than a current reading; their presence excludes the
// kpi_current match even when a temporal word happens to co-occur (e.g. "why
// did OEE drop today" mentions "today" but is plainly explain_oee).
var explanationCues = []string{"why", "porque", "explain"}

func matchesKPICurrent(lower string) bool {
	hasTemporal := containsAny(lower, temporalWords)
	hasKPI := containsAny(lower, kpiNouns)
	hasExplanation := containsAny(lower, explanationCues)
	return hasTemporal && hasKPI && !hasExplanation
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// intentRules excludes kpi_current, which has its own conjunction matcher
// (matchesKPICurrent) rather than a flat keyword list; Classify checks these
// narrower rules first and falls back to kpi_current last.
var intentRules = []intentRule{
	{20, models.IntentExplainOEE, []string{"why is oee", "why did oee", "explain oee", "oee drop", "oee dropped", "oee low"}},
	{30, models.IntentExplainPlanChange, []string{"plan change", "why was the plan", "schedule change", "replanned", "rescheduled"}},
	{40, models.IntentQualitySummary, []string{"quality summary", "defect", "scrap", "rework", "quality event"}},
	{50, models.IntentDataIntegrity, []string{"data missing", "data gap", "stale data", "is this accurate", "data integrity"}},
	{60, models.IntentRunbookRequest, []string{"runbook", "how do i fix", "what should i do", "procedure for"}},
}

// shortQuestionWords backs the KPI fast-detection heuristic: a short
// question containing one of these words is almost always asking for a
// current numeric value the Fast-Path Resolver can answer without a model
// call.
var shortQuestionWords = []string{"oee", "availability", "performance", "quality", "fpy", "yield"}

const shortQuestionMaxWords = 8

// Classify returns the first-matching Intent for a free-text query, walking
// spec.md §4.4's table and stopping at the first rule that fires — not a
// global-minimum scan across every rule. The narrower rules (explain_oee,
// explain_plan_change, quality_summary, data_integrity, runbook_request) are
// checked first; kpi_current's temporal+KPI conjunction is deliberately
// checked last, since it is the broadest trigger in the table and would
// otherwise shadow every rule that also happens to mention a KPI and a
// temporal word — e.g. "quality summary for today" or "why did OEE drop
// today" both satisfy kpi_current's literal conjunction but are plainly
// asking for something else. It never errors: an unmatched query resolves to
// generic, which always routes to the LLM path.
func Classify(query string) models.Intent {
	lower := strings.ToLower(query)

	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}

	if matchesKPICurrent(lower) {
		return models.IntentKPICurrent
	}
	return models.IntentGeneric
}

// IsFastPathEligible reports whether a query should bypass the LLM
// entirely. A query is fast-path eligible when it classifies as
// kpi_current AND is short enough to be an unambiguous numeric lookup —
// the same short-question heuristic the original service used, kept
// deliberately conservative so longer "why" questions always fall through
// to the LLM path where nuance matters.
func IsFastPathEligible(query string, intent models.Intent) bool {
	if intent != models.IntentKPICurrent {
		return false
	}
	words := strings.Fields(query)
	if len(words) > shortQuestionMaxWords {
		return false
	}
	lower := strings.ToLower(query)
	for _, w := range shortQuestionWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// ResponsePathFor decides fast vs llm for a classified query, honoring a
// global kill switch (config.Runtime.FastPathEnabled) so the fast path can
// be disabled without a deploy.
func ResponsePathFor(query string, intent models.Intent, fastPathEnabled bool) models.ResponsePath {
	if fastPathEnabled && IsFastPathEligible(query, intent) {
		return models.PathFast
	}
	return models.PathLLM
}
