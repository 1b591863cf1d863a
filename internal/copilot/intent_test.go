package copilot

import (
	"testing"

	"prodplan-copilot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  models.Intent
	}{
		{"what is our current OEE", models.IntentKPICurrent},
		{"why did OEE drop this morning", models.IntentExplainOEE},
		{"why was the plan changed for line 3", models.IntentExplainPlanChange},
		{"give me a quality summary for today", models.IntentQualitySummary},
		{"is this data accurate, I see a data gap", models.IntentDataIntegrity},
		{"what runbook should I follow for a jam", models.IntentRunbookRequest},
		{"tell me a joke", models.IntentGeneric},
		{"why did OEE drop today?", models.IntentExplainOEE},
		{"what is the OEE right now?", models.IntentKPICurrent},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.query), c.query)
	}
}

func TestIsFastPathEligible(t *testing.T) {
	assert.True(t, IsFastPathEligible("what is current OEE", models.IntentKPICurrent))
	assert.False(t, IsFastPathEligible("why is our OEE so low today compared to last week and what changed", models.IntentKPICurrent))
	assert.False(t, IsFastPathEligible("what is current OEE", models.IntentGeneric))
}

func TestResponsePathFor(t *testing.T) {
	assert.Equal(t, models.PathFast, ResponsePathFor("current OEE", models.IntentKPICurrent, true))
	assert.Equal(t, models.PathLLM, ResponsePathFor("current OEE", models.IntentKPICurrent, false))
	assert.Equal(t, models.PathLLM, ResponsePathFor("explain the plan change on line 2 yesterday afternoon in detail", models.IntentExplainPlanChange, true))
}
