package copilot

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"prodplan-copilot/internal/models"
	"prodplan-copilot/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lexicalWeight = 0.4
	vectorWeight  = 0.6
	candidateSize = 4000
)

var tokenPattern = regexp.MustCompile(`[a-zA-Zа-яА-Я0-9]+`)

// RetrievalStore answers a query with a ranked slice of document chunks,
// combining a BM25-like lexical score with cosine similarity over the
// query's embedding. Neither signal is trusted alone: a chunk that only
// matches lexically but sits nowhere near the query vector still surfaces,
// which is the whole point of hybrid retrieval over pure vector search.
type RetrievalStore struct {
	chunks *repository.ChunkRepository
	gw     *ModelGateway
	logger *zap.Logger
}

func NewRetrievalStore(chunks *repository.ChunkRepository, gw *ModelGateway, logger *zap.Logger) *RetrievalStore {
	return &RetrievalStore{chunks: chunks, gw: gw, logger: logger}
}

// Search returns up to topK chunks ranked by the weighted combination of
// lexical and vector score. It degrades to lexical-only ranking (logging a
// RetrievalDegraded condition rather than failing the whole request) if the
// embedding call fails — consistent with spec.md's fast-path/LLM-path
// request still being answerable when the model server is flaky.
func (s *RetrievalStore) Search(ctx context.Context, tenantID uuid.UUID, query string, topK int) ([]models.RankedChunk, error) {
	candidates, err := s.chunks.Candidates(ctx, tenantID, candidateSize)
	if err != nil {
		return nil, NewError(KindPersistenceFailed, "failed to load document chunks")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	queryTerms := tokenize(query)

	var queryVec []float32
	if s.gw != nil {
		queryVec, err = s.gw.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("embedding failed, degrading to lexical-only retrieval", zap.Error(err))
			queryVec = nil
		}
	}

	ranked := make([]models.RankedChunk, 0, len(candidates))
	for _, c := range candidates {
		lexScore := lexicalScore(queryTerms, c.Text)
		vecScore := 0.0
		if queryVec != nil && len(c.Embedding) > 0 {
			vecScore = cosineSimilarity(queryVec, c.Embedding)
		}
		combined := lexicalWeight*lexScore + vectorWeight*vecScore
		if queryVec == nil {
			combined = lexScore // pure lexical when no vector signal exists
		}
		ranked = append(ranked, models.RankedChunk{
			Chunk:        c,
			LexicalScore: lexScore,
			VectorScore:  vecScore,
			Score:        combined,
		})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	return ranked[:topK], nil
}

// cosineSimilarity mirrors the formula used across the corpus for comparing
// two fixed-dimension float32 vectors: dot product over the product of
// their norms, with a zero-norm guard to avoid a division by zero when a
// chunk's embedding was never populated.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// lexicalScore is a simplified term-overlap score in the spirit of BM25:
// it rewards a chunk that contains a higher fraction of the query's
// distinct terms, with a mild length penalty so a chunk doesn't win purely
// by being long.
func lexicalScore(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := tokenize(text)
	if len(docTerms) == 0 {
		return 0
	}
	docSet := make(map[string]int, len(docTerms))
	for _, t := range docTerms {
		docSet[t]++
	}

	var matched float64
	for _, qt := range queryTerms {
		if count, ok := docSet[qt]; ok {
			matched += math.Log(1 + float64(count))
		}
	}
	lengthPenalty := 1.0 / math.Log(2+float64(len(docTerms)))
	score := matched * lengthPenalty
	return score / (1 + score) // squash into [0,1)
}

func tokenize(s string) []string {
	lower := strings.ToLower(s)
	matches := tokenPattern.FindAllString(lower, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m)
		}
	}
	return out
}

const (
	chunkTargetSize = 700
	chunkOverlap    = 150
)

// ChunkText splits ingested document text into paragraph-bounded pieces of
// roughly chunkTargetSize runes with chunkOverlap carried forward, so a
// fact that straddles a paragraph break still lands whole inside one chunk
// or the other.
func ChunkText(text string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len()+len(p) > chunkTargetSize+chunkOverlap && current.Len() > 0 {
			tail := lastRunes(current.String(), chunkOverlap)
			flush()
			current.WriteString(tail)
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
