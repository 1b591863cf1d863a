package copilot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestLexicalScoreRewardsOverlap(t *testing.T) {
	terms := tokenize("current oee availability")
	high := lexicalScore(terms, "The current OEE and availability readings are strong this shift.")
	low := lexicalScore(terms, "The cafeteria menu changed for next week.")
	assert.Greater(t, high, low)
}

func TestChunkTextRespectsParagraphBoundaries(t *testing.T) {
	text := "Paragraph one is short.\n\nParagraph two is also fairly short.\n\nParagraph three rounds it out."
	chunks := ChunkText(text)
	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.NotEmpty(t, c)
	}
}

func TestChunkTextLongDocumentSplits(t *testing.T) {
	var long string
	for i := 0; i < 50; i++ {
		long += "This paragraph repeats itself many times to force a chunk boundary to appear somewhere in the middle of the document.\n\n"
	}
	chunks := ChunkText(long)
	assert.Greater(t, len(chunks), 1)
}
