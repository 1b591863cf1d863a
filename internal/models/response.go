package models

import (
	"time"

	"github.com/google/uuid"
)

// Intent is the closed set of query classifications the Intent Router may
// produce. Never persisted standalone — it only ever travels attached to a
// CopilotResponse.
type Intent string

const (
	IntentKPICurrent       Intent = "kpi_current"
	IntentExplainOEE       Intent = "explain_oee"
	IntentExplainPlanChange Intent = "explain_plan_change"
	IntentQualitySummary   Intent = "quality_summary"
	IntentDataIntegrity    Intent = "data_integrity"
	IntentRunbookRequest   Intent = "runbook_request"
	IntentGeneric          Intent = "generic"
)

// ResponsePath says whether an Intent is answered deterministically or
// requires an LLM round-trip.
type ResponsePath string

const (
	PathFast ResponsePath = "fast"
	PathLLM  ResponsePath = "llm"
)

type CitationSourceType string

const (
	CitationSourceDB          CitationSourceType = "db"
	CitationSourceRAG         CitationSourceType = "rag"
	CitationSourceEvent       CitationSourceType = "event"
	CitationSourceCalculation CitationSourceType = "calculation"
)

// Citation grounds one Fact in an underlying record or retrieved chunk. Ref
// is opaque to everything except the Guardrail, which checks it against the
// request's retrieved-chunk set or the snapshot's marker set.
type Citation struct {
	SourceType CitationSourceType `json:"source_type"`
	Ref        string             `json:"ref"`
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	TrustIndex float64            `json:"trust_index"`
}

// Fact is one sentence of an answer plus the citations that ground it. A
// Fact with zero citations cannot survive the Guardrail unless the
// enclosing response carries INSUFFICIENT_EVIDENCE.
type Fact struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

type ActionType string

const (
	ActionCreateDecisionPR ActionType = "CREATE_DECISION_PR"
	ActionDryRun           ActionType = "DRY_RUN"
	ActionOpenEntity       ActionType = "OPEN_ENTITY"
	ActionRunRunbook       ActionType = "RUN_RUNBOOK"
)

// Action is a proposal the caller may choose to execute; the core never
// acts on the factory floor itself.
type Action struct {
	Type             ActionType     `json:"action_type"`
	Label            string         `json:"label"`
	RequiresApproval bool           `json:"requires_approval"`
	Payload          map[string]any `json:"payload,omitempty"`
}

type WarningCode string

const (
	WarningInsufficientEvidence WarningCode = "INSUFFICIENT_EVIDENCE"
	WarningSecurityFlag         WarningCode = "SECURITY_FLAG"
	WarningLowTrustIndex        WarningCode = "LOW_TRUST_INDEX"
	WarningModelOffline         WarningCode = "MODEL_OFFLINE"
	WarningValidationFailed     WarningCode = "VALIDATION_FAILED"
	WarningRateLimited          WarningCode = "RATE_LIMITED"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

type ResponseType string

const (
	ResponseAnswer        ResponseType = "ANSWER"
	ResponseRunbookResult ResponseType = "RUNBOOK_RESULT"
	ResponseProposal      ResponseType = "PROPOSAL"
	ResponseError         ResponseType = "ERROR"
)

// ResponseMeta carries the gateway/validation bookkeeping the Response
// Normalizer is responsible for populating.
type ResponseMeta struct {
	Model            string `json:"model"`
	TokenCount       int    `json:"token_count"`
	LatencyMS        int64  `json:"latency_ms"`
	ValidationPassed bool   `json:"validation_passed"`
}

// CopilotResponse is the one structured shape every external interface
// returns, success or failure alike. The core never surfaces a raw error.
type CopilotResponse struct {
	SuggestionID  uuid.UUID    `json:"suggestion_id"`
	CorrelationID string       `json:"correlation_id"`
	Type          ResponseType `json:"type"`
	Intent        Intent       `json:"intent"`
	Summary       string       `json:"summary"`
	Facts         []Fact       `json:"facts"`
	Actions       []Action     `json:"actions"`
	Warnings      []Warning    `json:"warnings"`
	Meta          ResponseMeta `json:"meta"`
}

// HasWarning reports whether a warning of the given code is already present,
// used throughout the Guardrail/Normalizer to avoid duplicate appends.
func (r *CopilotResponse) HasWarning(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func (r *CopilotResponse) AddWarning(code WarningCode, message string) {
	if r.HasWarning(code) {
		return
	}
	r.Warnings = append(r.Warnings, Warning{Code: code, Message: message})
}

// Conversation groups a tenant+user's Messages under a title.
type Conversation struct {
	ID            uuid.UUID  `db:"id"`
	TenantID      uuid.UUID  `db:"tenant_id"`
	UserID        uuid.UUID  `db:"user_id"`
	Title         string     `db:"title"`
	CreatedAt     time.Time  `db:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at"`
	IsArchived    bool       `db:"is_archived"`
}

type MessageRole string

const (
	RoleUser    MessageRole = "user"
	RoleCopilot MessageRole = "copilot"
)

// Message is one turn in a Conversation. ContentStructured is the
// serialized CopilotResponse for a copilot turn, empty for a user turn.
type Message struct {
	ID                uuid.UUID `db:"id"`
	ConversationID    uuid.UUID `db:"conversation_id"`
	TenantID          uuid.UUID `db:"tenant_id"`
	Role              MessageRole `db:"role"`
	ContentText       string    `db:"content_text"`
	ContentStructured string    `db:"content_structured"`
	CorrelationID     string    `db:"correlation_id"`
	LatencyMS         int64     `db:"latency_ms"`
	Model             string    `db:"model"`
	ValidationPassed  bool      `db:"validation_passed"`
	CreatedAt         time.Time `db:"created_at"`
}

// SuggestionAudit is written unconditionally for every answered request,
// successful or not, so every suggestion id a Message references resolves.
type SuggestionAudit struct {
	SuggestionID  uuid.UUID `db:"suggestion_id"`
	TenantID      uuid.UUID `db:"tenant_id"`
	UserID        uuid.UUID `db:"user_id"`
	QueryText     string    `db:"query_text"`
	Intent        Intent    `db:"intent"`
	ResponseJSON  string    `db:"response_json"`
	PromptHash    string    `db:"prompt_hash"`
	ResponseHash  string    `db:"response_hash"`
	CreatedAt     time.Time `db:"created_at"`
}

type DecisionPRStatus string

const (
	DecisionPRPending  DecisionPRStatus = "PENDING"
	DecisionPRApproved DecisionPRStatus = "APPROVED"
	DecisionPRRejected DecisionPRStatus = "REJECTED"
)

// DecisionPR tracks the lifecycle of a CREATE_DECISION_PR action beyond the
// fire-and-forget write: it can be approved or rejected by an external
// approver before anything on the factory floor actually changes.
type DecisionPR struct {
	ID           uuid.UUID        `db:"id"`
	TenantID     uuid.UUID        `db:"tenant_id"`
	SuggestionID uuid.UUID        `db:"suggestion_id"`
	Title        string           `db:"title"`
	Description  string           `db:"description"`
	PayloadJSON  string           `db:"payload_json"`
	Status       DecisionPRStatus `db:"status"`
	ApproverID   *uuid.UUID       `db:"approver_id"`
	ApprovedAt   *time.Time       `db:"approved_at"`
	CreatedAt    time.Time        `db:"created_at"`
}

type FeedbackSeverity string

const (
	FeedbackInfo     FeedbackSeverity = "INFO"
	FeedbackWarn     FeedbackSeverity = "WARN"
	FeedbackCritical FeedbackSeverity = "CRITICAL"
)

type DailyFeedbackBullet struct {
	Severity  FeedbackSeverity `json:"severity"`
	Title     string           `json:"title"`
	Text      string           `json:"text"`
	Citations []Citation       `json:"citations"`
}

// DailyFeedback is a per-tenant, per-date cached bundle, unique on
// (tenant_id, feedback_date).
type DailyFeedback struct {
	TenantID     uuid.UUID             `db:"tenant_id"`
	FeedbackDate time.Time             `db:"feedback_date"`
	BulletsJSON  string                `db:"bullets_json"`
	Bullets      []DailyFeedbackBullet `db:"-"`
	CreatedAt    time.Time             `db:"created_at"`
}
