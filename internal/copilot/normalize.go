package copilot

import (
	"time"

	"prodplan-copilot/internal/models"

	"github.com/google/uuid"
)

// Normalize stamps the identifiers and metadata every CopilotResponse must
// carry regardless of which path produced it, and defaults nil slices to
// empty ones so a caller never has to nil-check Facts/Actions/Warnings.
func Normalize(resp *models.CopilotResponse, correlationID string, modelName string, tokenCount int, startedAt time.Time, validationPassed bool) *models.CopilotResponse {
	if resp.SuggestionID == uuid.Nil {
		resp.SuggestionID = uuid.New()
	}
	resp.CorrelationID = correlationID
	resp.Meta = models.ResponseMeta{
		Model:            modelName,
		TokenCount:       tokenCount,
		LatencyMS:        time.Since(startedAt).Milliseconds(),
		ValidationPassed: validationPassed,
	}

	if resp.Facts == nil {
		resp.Facts = []models.Fact{}
	}
	if resp.Actions == nil {
		resp.Actions = []models.Action{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []models.Warning{}
	}
	return resp
}

// ErrorResponse builds the well-formed ERROR-type CopilotResponse the
// orchestrator returns whenever a *Error short-circuits the pipeline —
// every exit from process_ask is a CopilotResponse, never a bare HTTP error
// body, per spec.md §4.11.
func ErrorResponse(correlationID string, kind ErrorKind, warning models.WarningCode, message string) *models.CopilotResponse {
	resp := &models.CopilotResponse{
		Type:          models.ResponseError,
		CorrelationID: correlationID,
		Summary:       message,
		Facts:         []models.Fact{},
		Actions:       []models.Action{},
	}
	resp.AddWarning(warning, message)
	return resp
}
