package copilot

import (
	"fmt"
	"strings"

	"prodplan-copilot/internal/models"
)

const systemRules = `You are the operational copilot for a factory production-planning system.
Answer only from the CONTEXT and RAG EXCERPTS sections below. Never invent a
number, order id, or event that is not present there. Every factual
statement must carry a citation in the form [DB:<kind>:<ref>] or
[RAG:<chunk_id>]. If the context does not contain enough information to
answer, say so plainly instead of guessing. Respond with a single JSON
object matching the requested schema, nothing else.`

// PromptBudget caps the rendered prompt by query length, so a short
// factory-floor question doesn't pay for the same context budget as a
// multi-paragraph investigation request.
type PromptBudget int

const (
	BudgetSmall  PromptBudget = 2 * 1024
	BudgetMedium PromptBudget = 6 * 1024
	BudgetLarge  PromptBudget = 12 * 1024
)

// ChooseBudget maps a query's word count to one of the three fixed budgets.
func ChooseBudget(query string) PromptBudget {
	words := len(strings.Fields(query))
	switch {
	case words <= 12:
		return BudgetSmall
	case words <= 40:
		return BudgetMedium
	default:
		return BudgetLarge
	}
}

// RenderPrompt assembles the final prompt text: system rules, the
// snapshot's [DB:...] marked facts, the retrieved chunks' [RAG:<id>]
// labeled excerpts, and the user's query — truncated to fit budget, RAG
// excerpts dropped first since the snapshot is considered higher-value for
// the intents that reach the LLM path.
func RenderPrompt(query string, snapshotText string, chunks []models.RankedChunk, budget PromptBudget) string {
	var sb strings.Builder
	sb.WriteString(systemRules)
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(snapshotText)

	remaining := int(budget) - sb.Len() - len(query) - 64
	if remaining > 0 && len(chunks) > 0 {
		sb.WriteString("\nRAG EXCERPTS:\n")
		for _, rc := range chunks {
			excerpt := fmt.Sprintf("[RAG:%s] %s\n", rc.Chunk.ID.String(), rc.Chunk.Text)
			if len(excerpt) > remaining {
				break
			}
			sb.WriteString(excerpt)
			remaining -= len(excerpt)
		}
	}

	sb.WriteString("\nQUESTION:\n")
	sb.WriteString(query)

	out := sb.String()
	if len(out) > int(budget) {
		out = out[:int(budget)]
	}
	return out
}
