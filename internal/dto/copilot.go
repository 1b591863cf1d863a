package dto

// AskRequest is the body of POST /copilot/ask, matching spec.md §6's
// process_ask request contract.
type AskRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserQuery      string `json:"user_query"`
	WindowHours    int    `json:"window_hours,omitempty"`
	EntityType     string `json:"entity_type,omitempty"`
	EntityID       string `json:"entity_id,omitempty"`
	// IncludeCitations defaults to true when omitted; a caller must set it
	// to false explicitly to get a citation-free response.
	IncludeCitations *bool  `json:"include_citations,omitempty"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
}

// IngestRequest carries one document's already-extracted text to the
// Retrieval Store's ingestion path.
type IngestRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
	Tags   []string `json:"tags,omitempty"`
}

// IngestResponse reports how many chunks a document was split into.
type IngestResponse struct {
	Source     string `json:"source"`
	ChunkCount int    `json:"chunk_count"`
}

// ConversationResponse is the wire shape for one conversation's summary.
type ConversationResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	CreatedAt     string  `json:"created_at"`
	LastMessageAt *string `json:"last_message_at,omitempty"`
	IsArchived    bool    `json:"is_archived"`
}

// MessageResponse is the wire shape for one conversation turn.
type MessageResponse struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	ContentText   string `json:"content_text"`
	CorrelationID string `json:"correlation_id"`
	CreatedAt     string `json:"created_at"`
}

// RenameConversationRequest is the body of PATCH /conversations/{id}/rename.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// InsightsResponse merges today's daily feedback bullets ("now") with a
// "next" slot that stays empty in this core — forward-looking
// recommendations live in a separate, Non-goal recommendation engine.
type InsightsResponse struct {
	Now  []interface{} `json:"now"`
	Next []interface{} `json:"next"`
}
