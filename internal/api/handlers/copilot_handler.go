package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"prodplan-copilot/internal/copilot"
	"prodplan-copilot/internal/dto"
	"prodplan-copilot/internal/models"
	"prodplan-copilot/internal/repository"
	"prodplan-copilot/internal/service"
	"prodplan-copilot/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CopilotHandler exposes the orchestrator and the conversation store over
// HTTP. Every route reads the caller's tenant/actor/role off fiber Locals
// (populated by middleware.TenantContext); on every route, including the
// -dev ones, the tenant falls back to the X-Tenant-Id header when no bearer
// token supplied it.
type CopilotHandler struct {
	orchestrator  *copilot.Orchestrator
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	dailyFeedback *repository.DailyFeedbackRepository
	chunks        *repository.ChunkRepository
	decisionPRs   *repository.DecisionPRRepository
	gateway       *copilot.ModelGateway
	logger        *zap.Logger
}

func NewCopilotHandler(
	orchestrator *copilot.Orchestrator,
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	dailyFeedback *repository.DailyFeedbackRepository,
	chunks *repository.ChunkRepository,
	decisionPRs *repository.DecisionPRRepository,
	gateway *copilot.ModelGateway,
	logger *zap.Logger,
) *CopilotHandler {
	return &CopilotHandler{
		orchestrator:  orchestrator,
		conversations: conversations,
		messages:      messages,
		dailyFeedback: dailyFeedback,
		chunks:        chunks,
		decisionPRs:   decisionPRs,
		gateway:       gateway,
		logger:        logger,
	}
}

// Ask godoc
// @Summary Ask the operational copilot a question
// @Description Runs the full fast-path/LLM-path pipeline and returns a CopilotResponse
// @Tags copilot
// @Accept json
// @Produce json
// @Param request body dto.AskRequest true "Question"
// @Security Bearer
// @Success 200 {object} models.CopilotResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/copilot/ask [post]
func (h *CopilotHandler) Ask(c *fiber.Ctx) error {
	return h.ask(c, "")
}

const (
	minQueryLength = 1
	maxQueryLength = 2000
)

// ask is Ask's implementation, taking an optional conversation id sourced
// from the path (PostMessage) instead of the request body. Every exit is a
// well-formed CopilotResponse, per the orchestrator's own documented
// principle — a bad request never gets a raw error map instead.
func (h *CopilotHandler) ask(c *fiber.Ctx, pathConversationID string) error {
	correlationID := uuid.New().String()

	tenantIDStr, actorIDStr, role := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(copilot.ErrorResponse(correlationID, copilot.KindBadRequest, models.WarningValidationFailed, "missing or invalid tenant"))
	}
	actorID, _ := uuid.Parse(actorIDStr) // zero UUID is fine for rate limiting key purposes

	var body dto.AskRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(copilot.ErrorResponse(correlationID, copilot.KindBadRequest, models.WarningValidationFailed, "request body could not be parsed"))
	}
	queryLen := len([]rune(body.UserQuery))
	if queryLen < minQueryLength || queryLen > maxQueryLength {
		return c.Status(fiber.StatusBadRequest).JSON(copilot.ErrorResponse(correlationID, copilot.KindBadRequest, models.WarningValidationFailed, "user_query must be between 1 and 2000 characters"))
	}
	if pathConversationID != "" {
		body.ConversationID = pathConversationID
	}

	var conversationID uuid.UUID
	if body.ConversationID != "" {
		parsed, err := uuid.Parse(body.ConversationID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(copilot.ErrorResponse(correlationID, copilot.KindBadRequest, models.WarningValidationFailed, "invalid conversation_id"))
		}
		if _, err := h.conversations.Get(c.Context(), tenantID, parsed); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(copilot.ErrorResponse(correlationID, copilot.KindBadRequest, models.WarningValidationFailed, "conversation not found"))
		}
		conversationID = parsed
	}

	includeCitations := body.IncludeCitations == nil || *body.IncludeCitations

	req := copilot.AskRequest{
		TenantID:         tenantID,
		ActorID:          actorID,
		Role:             role,
		Query:            body.UserQuery,
		CorrelationID:    correlationID,
		WindowHours:      body.WindowHours,
		EntityType:       body.EntityType,
		EntityID:         body.EntityID,
		IncludeCitations: includeCitations,
		IdempotencyKey:   body.IdempotencyKey,
	}

	resp := h.orchestrator.Ask(c.Context(), req, conversationID)
	return c.JSON(resp)
}

// PostMessage godoc
// @Summary Ask a question within an existing conversation, identified by path id
// @Description Equivalent to POST /ask with conversation_id set from the path
// @Tags copilot
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param request body dto.AskRequest true "Question"
// @Security Bearer
// @Success 200 {object} models.CopilotResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/conversations/{id}/messages [post]
func (h *CopilotHandler) PostMessage(c *fiber.Ctx) error {
	return h.ask(c, c.Params("id"))
}

// Health godoc
// @Summary Report model server and circuit breaker health
// @Tags copilot
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/copilot/health [get]
func (h *CopilotHandler) Health(c *fiber.Ctx) error {
	status := h.gateway.Health(c.Context())
	return c.JSON(fiber.Map{
		"model_status":   status,
		"breaker_state":  h.gateway.BreakerState(),
	})
}

// DailyFeedback godoc
// @Summary Get today's cached daily feedback bundle
// @Tags copilot
// @Produce json
// @Security Bearer
// @Success 200 {object} models.DailyFeedback
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/daily-feedback [get]
func (h *CopilotHandler) DailyFeedback(c *fiber.Ctx) error {
	tenantIDStr, _, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}

	fb, err := h.dailyFeedback.Get(c.Context(), tenantID, time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to load daily feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load daily feedback"})
	}
	if fb == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no daily feedback for today yet"})
	}
	_ = json.Unmarshal([]byte(fb.BulletsJSON), &fb.Bullets)
	return c.JSON(fb)
}

// Insights godoc
// @Summary Get today's insights from the cached daily feedback bundle
// @Description The "next" slot is always empty in this core; forward-looking recommendations are owned by a separate recommendation engine
// @Tags copilot
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.InsightsResponse
// @Router /api/v1/copilot/insights [get]
func (h *CopilotHandler) Insights(c *fiber.Ctx) error {
	tenantIDStr, _, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}

	resp := dto.InsightsResponse{Now: []interface{}{}, Next: []interface{}{}}

	fb, err := h.dailyFeedback.Get(c.Context(), tenantID, time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to load daily feedback for insights", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load insights"})
	}
	if fb != nil {
		_ = json.Unmarshal([]byte(fb.BulletsJSON), &fb.Bullets)
		for _, b := range fb.Bullets {
			resp.Now = append(resp.Now, b)
		}
	}
	return c.JSON(resp)
}

// IngestDocument godoc
// @Summary Ingest a pre-extracted document into the retrieval store
// @Tags copilot
// @Accept json
// @Produce json
// @Param request body dto.IngestRequest true "Document text"
// @Security Bearer
// @Success 201 {object} dto.IngestResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/copilot/rag/ingest [post]
func (h *CopilotHandler) IngestDocument(c *fiber.Ctx) error {
	tenantIDStr, _, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}

	var body dto.IngestRequest
	if err := c.BodyParser(&body); err != nil || body.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required"})
	}

	chunks := copilot.ChunkText(service.SanitizeUTF8(body.Text))
	for i, text := range chunks {
		var embedding []float32
		if h.gateway != nil {
			embedding, err = h.gateway.Embed(c.Context(), text)
			if err != nil {
				h.logger.Warn("embedding failed during ingestion, storing chunk without vector", zap.Error(err))
			}
		}
		chunk := &models.DocumentChunk{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Source:    body.Source,
			Ordinal:   i,
			Text:      text,
			Embedding: embedding,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.chunks.Create(c.Context(), chunk); err != nil {
			h.logger.Error("failed to persist chunk", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store document chunk"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(dto.IngestResponse{Source: body.Source, ChunkCount: len(chunks)})
}

// ApproveDecisionPR godoc
// @Summary Approve a pending decision PR
// @Tags copilot
// @Param id path string true "Decision PR ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/decision-prs/{id}/approve [post]
func (h *CopilotHandler) ApproveDecisionPR(c *fiber.Ctx) error {
	return h.setDecisionPRStatus(c, true)
}

// RejectDecisionPR godoc
// @Summary Reject a pending decision PR
// @Tags copilot
// @Param id path string true "Decision PR ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/decision-prs/{id}/reject [post]
func (h *CopilotHandler) RejectDecisionPR(c *fiber.Ctx) error {
	return h.setDecisionPRStatus(c, false)
}

func (h *CopilotHandler) setDecisionPRStatus(c *fiber.Ctx, approve bool) error {
	tenantIDStr, actorIDStr, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}
	approverID, err := uuid.Parse(actorIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid actor"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid decision pr id"})
	}

	var opErr error
	if approve {
		opErr = h.decisionPRs.Approve(c.Context(), tenantID, id, approverID)
	} else {
		opErr = h.decisionPRs.Reject(c.Context(), tenantID, id, approverID)
	}
	if opErr != nil {
		if opErr == repository.ErrNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "decision pr not found"})
		}
		h.logger.Error("failed to update decision pr", zap.Error(opErr))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update decision pr"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListConversations godoc
// @Summary List a user's conversations
// @Tags copilot
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.Conversation
// @Router /api/v1/copilot/conversations [get]
func (h *CopilotHandler) ListConversations(c *fiber.Ctx) error {
	tenantIDStr, actorIDStr, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}
	userID, err := uuid.Parse(actorIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid actor"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	conversations, err := h.conversations.List(c.Context(), tenantID, userID, limit, offset, nil)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list conversations"})
	}
	return c.JSON(conversations)
}

// CreateConversation godoc
// @Summary Start a new conversation
// @Tags copilot
// @Produce json
// @Security Bearer
// @Success 201 {object} models.Conversation
// @Router /api/v1/copilot/conversations [post]
func (h *CopilotHandler) CreateConversation(c *fiber.Ctx) error {
	tenantIDStr, actorIDStr, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}
	userID, err := uuid.Parse(actorIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid actor"})
	}

	var body struct {
		Title string `json:"title"`
	}
	_ = c.BodyParser(&body)

	conv, err := h.conversations.Create(c.Context(), tenantID, userID, body.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create conversation"})
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ListMessages godoc
// @Summary List messages in a conversation
// @Tags copilot
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "Limit" default(50)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} models.Message
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/conversations/{id}/messages [get]
func (h *CopilotHandler) ListMessages(c *fiber.Ctx) error {
	tenantIDStr, _, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid conversation id"})
	}

	if _, err := h.conversations.Get(c.Context(), tenantID, conversationID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	msgs, err := h.messages.List(c.Context(), tenantID, conversationID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list messages"})
	}
	return c.JSON(msgs)
}

// RenameConversation godoc
// @Summary Rename a conversation
// @Tags copilot
// @Accept json
// @Param id path string true "Conversation ID"
// @Param request body dto.RenameConversationRequest true "New title"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/conversations/{id}/rename [patch]
func (h *CopilotHandler) RenameConversation(c *fiber.Ctx) error {
	tenantIDStr, _, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid conversation id"})
	}

	var body dto.RenameConversationRequest
	if err := c.BodyParser(&body); err != nil || body.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	if err := h.conversations.Rename(c.Context(), tenantID, conversationID, body.Title); err != nil {
		if err == repository.ErrNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
		}
		h.logger.Error("failed to rename conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to rename conversation"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ArchiveConversation godoc
// @Summary Archive a conversation
// @Tags copilot
// @Param id path string true "Conversation ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/copilot/conversations/{id}/archive [post]
func (h *CopilotHandler) ArchiveConversation(c *fiber.Ctx) error {
	tenantIDStr, _, _ := middleware.TenantFromLocals(c)
	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing or invalid tenant"})
	}
	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid conversation id"})
	}

	if err := h.conversations.Archive(c.Context(), tenantID, conversationID); err != nil {
		if err == repository.ErrNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
		}
		h.logger.Error("failed to archive conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to archive conversation"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
