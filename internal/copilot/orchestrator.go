package copilot

import (
	"context"
	"encoding/json"
	"time"

	"prodplan-copilot/internal/models"
	"prodplan-copilot/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const wallClockBudgetDefault = 20 * time.Second

// idempotencyNamespace seeds the deterministic suggestion id derived from an
// idempotency key, so re-submitting the same key always yields the same
// suggestion_id per spec.md §6's round-trip law, without needing a response
// cache keyed on it.
var idempotencyNamespace = uuid.MustParse("7a3cf6e0-7c2e-4b9d-9e36-7a0a0e9c6b4f")

// AskRequest is everything process_ask needs to answer one question.
type AskRequest struct {
	TenantID        uuid.UUID
	ActorID         uuid.UUID
	Role            string
	Query           string
	CorrelationID   string
	WindowHours     int
	EntityType      string
	EntityID        string
	IncludeCitations bool
	IdempotencyKey  string
}

// Orchestrator is the process_ask state machine: budget guard → rate limit
// → injection check → intent classify → build snapshot → fast path or
// (retrieve → render prompt → generate → guard) → redact → normalize →
// persist → audit. Every exit is a well-formed CopilotResponse, per spec.md
// §4.11.
type Orchestrator struct {
	rateLimiter    *RateLimiter
	contextBuilder *ContextBuilder
	retrieval      *RetrievalStore
	gateway        *ModelGateway
	conversations  *repository.ConversationRepository
	messages       *repository.MessageRepository
	suggestions    *repository.SuggestionRepository
	decisionPRs    *repository.DecisionPRRepository

	fastPathEnabled  bool
	wallClockBudget  time.Duration
	redactionEnabled bool
	ragTopKShort     int
	ragTopKLong      int

	logger *zap.Logger
}

type OrchestratorConfig struct {
	FastPathEnabled  bool
	WallClockBudget  time.Duration
	RedactionEnabled bool
	RAGTopKShort     int
	RAGTopKLong      int
}

func NewOrchestrator(
	rateLimiter *RateLimiter,
	contextBuilder *ContextBuilder,
	retrieval *RetrievalStore,
	gateway *ModelGateway,
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	suggestions *repository.SuggestionRepository,
	decisionPRs *repository.DecisionPRRepository,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	budget := cfg.WallClockBudget
	if budget <= 0 {
		budget = wallClockBudgetDefault
	}
	return &Orchestrator{
		rateLimiter:      rateLimiter,
		contextBuilder:   contextBuilder,
		retrieval:        retrieval,
		gateway:          gateway,
		conversations:    conversations,
		messages:         messages,
		suggestions:      suggestions,
		decisionPRs:      decisionPRs,
		fastPathEnabled:  cfg.FastPathEnabled,
		wallClockBudget:  budget,
		redactionEnabled: cfg.RedactionEnabled,
		ragTopKShort:     cfg.RAGTopKShort,
		ragTopKLong:      cfg.RAGTopKLong,
		logger:           logger,
	}
}

// Ask runs the full pipeline for one question and always returns a
// well-formed CopilotResponse; conversationID is optional (uuid.Nil, passed
// when the request names no conversation, skips persistence of the turn).
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest, conversationID uuid.UUID) *models.CopilotResponse {
	started := time.Now()
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, o.wallClockBudget)
	defer cancel()

	if !o.rateLimiter.Allow(ctx, req.TenantID.String(), req.ActorID.String()) {
		return ErrorResponse(req.CorrelationID, KindRateLimited, models.WarningRateLimited, "too many requests, please slow down")
	}

	if score, blocked := DetectInjection(req.Query); blocked {
		o.logger.Warn("blocked likely prompt injection", zap.Float64("score", score), zap.String("correlation_id", req.CorrelationID))
		return ErrorResponse(req.CorrelationID, KindSecurityFlag, models.WarningSecurityFlag, "this request could not be processed")
	}

	intent := Classify(req.Query)
	windowHours := req.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	snap := o.contextBuilder.Build(ctx, req.TenantID, windowHours, req.EntityID)

	var resp *models.CopilotResponse
	var modelName string
	var tokenCount int
	var validationPassed bool

	path := ResponsePathFor(req.Query, intent, o.fastPathEnabled)
	if path == models.PathFast {
		resp = resolveFastPath(req.Query, intent, snap)
		validationPassed = true
	} else {
		resp, modelName, tokenCount, validationPassed = o.runLLMPath(ctx, req, intent, snap)
	}

	resp.Summary = redactEmployeeNames(resp.Summary, req.Role, o.redactionEnabled, snap)
	for i := range resp.Facts {
		resp.Facts[i].Text = redactEmployeeNames(resp.Facts[i].Text, req.Role, o.redactionEnabled, snap)
	}

	if !req.IncludeCitations {
		for i := range resp.Facts {
			resp.Facts[i].Citations = nil
		}
	}

	if req.IdempotencyKey != "" {
		resp.SuggestionID = uuid.NewSHA1(idempotencyNamespace, []byte(req.TenantID.String()+":"+req.IdempotencyKey))
	}
	resp = Normalize(resp, req.CorrelationID, modelName, tokenCount, started, validationPassed)

	o.persistTurn(ctx, req, conversationID, resp)
	o.audit(ctx, req, resp)
	o.createDecisionPRs(ctx, req, resp)

	return resp
}

// createDecisionPRs persists a pending DecisionPR row for every
// CREATE_DECISION_PR action the response proposes, so an approver can act on
// it through the decision-pr endpoints instead of the action payload being a
// fire-and-forget write, per spec.md's DecisionPR lifecycle.
func (o *Orchestrator) createDecisionPRs(ctx context.Context, req AskRequest, resp *models.CopilotResponse) {
	if o.decisionPRs == nil {
		return
	}
	for _, a := range resp.Actions {
		if a.Type != models.ActionCreateDecisionPR {
			continue
		}
		payloadJSON, _ := json.Marshal(a.Payload)
		if _, err := o.decisionPRs.Create(ctx, req.TenantID, resp.SuggestionID, a.Label, resp.Summary, string(payloadJSON)); err != nil {
			o.logger.Error("failed to persist decision PR", zap.Error(err), zap.String("correlation_id", req.CorrelationID))
		}
	}
}

// runLLMPath executes the retrieve → prompt → generate → guard stages. Any
// *Error raised along the way becomes a well-formed error response instead
// of propagating out of Ask.
func (o *Orchestrator) runLLMPath(ctx context.Context, req AskRequest, intent models.Intent, snap *models.OperationalSnapshot) (*models.CopilotResponse, string, int, bool) {
	topK := o.ragTopKShort
	budget := ChooseBudget(req.Query)
	if budget != BudgetSmall {
		topK = o.ragTopKLong
	}

	chunks, err := o.retrieval.Search(ctx, req.TenantID, req.Query, topK)
	if err != nil {
		o.logger.Warn("retrieval degraded", zap.Error(err))
		chunks = nil
	}

	snapshotText := o.contextBuilder.Render(snap)
	prompt := RenderPrompt(req.Query, snapshotText, chunks, budget)

	reply, err := o.gateway.Generate(ctx, prompt, DefaultGenerateOptions())
	if err != nil {
		return o.errorAsResponse(req.CorrelationID, err), "", 0, false
	}

	parsed, err := ParseModelJSON(reply.Response)
	if err != nil {
		// one repair retry: ask the model to reformat as pure JSON
		repairPrompt := prompt + "\n\nYour previous reply was not valid JSON. Reply again with ONLY the JSON object, no commentary."
		reply2, err2 := o.gateway.Generate(ctx, repairPrompt, DefaultGenerateOptions())
		if err2 != nil {
			return o.errorAsResponse(req.CorrelationID, err2), "", 0, false
		}
		parsed, err = ParseModelJSON(reply2.Response)
		if err != nil {
			return ErrorResponse(req.CorrelationID, KindValidationFailed, models.WarningValidationFailed, "the model's response could not be validated"), "", reply2.EvalCount, false
		}
		reply = reply2
	}

	resolver := newRefResolver(chunks, snapshotText)
	resp, _, _ := GroundAndNormalize(parsed, resolver, intent)

	return resp, o.gatewayModelName(), reply.EvalCount, true
}

func (o *Orchestrator) gatewayModelName() string {
	if o.gateway == nil {
		return ""
	}
	return o.gateway.modelName
}

func (o *Orchestrator) errorAsResponse(correlationID string, err error) *models.CopilotResponse {
	if cerr, ok := err.(*Error); ok {
		switch cerr.Kind {
		case KindModelOffline:
			return ErrorResponse(correlationID, KindModelOffline, models.WarningModelOffline, "the model server is currently unavailable")
		case KindModelTransient:
			return ErrorResponse(correlationID, KindModelTransient, models.WarningModelOffline, "the model server did not respond in time")
		default:
			return ErrorResponse(correlationID, cerr.Kind, models.WarningValidationFailed, cerr.Message)
		}
	}
	return ErrorResponse(correlationID, KindModelTransient, models.WarningModelOffline, "an unexpected error occurred while generating a response")
}

// persistTurn writes the user/copilot message pair atomically when a
// conversation id was supplied. Persistence failure never overrides the
// response already computed — it is only logged, and the response carries
// no warning for it, since the user still got their answer.
func (o *Orchestrator) persistTurn(ctx context.Context, req AskRequest, conversationID uuid.UUID, resp *models.CopilotResponse) {
	if conversationID == uuid.Nil || o.messages == nil {
		return
	}

	structured, _ := json.Marshal(resp)
	userMsg := &models.Message{Role: models.RoleUser, ContentText: req.Query, CorrelationID: req.CorrelationID}
	copilotMsg := &models.Message{
		Role:             models.RoleCopilot,
		ContentText:      resp.Summary,
		ContentStructured: string(structured),
		CorrelationID:    req.CorrelationID,
		LatencyMS:        resp.Meta.LatencyMS,
		Model:            resp.Meta.Model,
		ValidationPassed: resp.Meta.ValidationPassed,
	}

	if err := o.messages.AppendTurn(ctx, req.TenantID, conversationID, userMsg, copilotMsg); err != nil {
		o.logger.Error("failed to persist conversation turn", zap.Error(err), zap.String("correlation_id", req.CorrelationID))
	}
}

// audit unconditionally records the suggestion audit row, independent of
// whether conversation persistence was requested — every answered request
// leaves an audit trail, per spec.md §4.10.
func (o *Orchestrator) audit(ctx context.Context, req AskRequest, resp *models.CopilotResponse) {
	if o.suggestions == nil {
		return
	}
	responseJSON, _ := json.Marshal(resp)
	audit := &models.SuggestionAudit{
		SuggestionID: resp.SuggestionID,
		TenantID:     req.TenantID,
		UserID:       req.ActorID,
		QueryText:    req.Query,
		Intent:       resp.Intent,
		ResponseJSON: string(responseJSON),
		PromptHash:   sha256Hash(req.Query),
		ResponseHash: sha256Hash(resp.Summary),
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.suggestions.Create(ctx, audit); err != nil {
		o.logger.Error("failed to persist suggestion audit", zap.Error(err), zap.String("correlation_id", req.CorrelationID))
	}
}
