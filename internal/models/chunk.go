package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentChunk is a contiguous fragment of an ingested document paired with
// its embedding. Rows are immutable once written; a reindex supersedes them
// rather than mutating in place.
type DocumentChunk struct {
	ID        uuid.UUID `db:"id"`
	TenantID  uuid.UUID `db:"tenant_id"`
	Source    string    `db:"source"`
	Ordinal   int       `db:"ordinal"`
	Text      string    `db:"text"`
	Embedding []float32 `db:"embedding"`
	Tags      string    `db:"tags"` // JSON-encoded []string, empty array if none
	CreatedAt time.Time `db:"created_at"`
}

// RankedChunk is a DocumentChunk annotated with the hybrid score that placed
// it in a search result set.
type RankedChunk struct {
	Chunk        *DocumentChunk
	LexicalScore float64
	VectorScore  float64
	Score        float64
}
