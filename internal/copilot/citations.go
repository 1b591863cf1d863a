package copilot

import "prodplan-copilot/internal/models"

const (
	calculationConfidence = 0.90
	calculationTrustIndex = 0.85
	dataGapTrustIndex     = 0.5
)

// calculationCitation builds the citation shape for a fact the core derived
// itself (a ratio, a delta, a count) rather than reading a single DB value
// or RAG excerpt verbatim. trustIndex should come from the snapshot the fact
// was derived from (OperationalSnapshot.TrustIndex); calculationTrustIndex
// is only a fallback for callers with no snapshot to read from.
func calculationCitation(ref, label string, trustIndex float64) models.Citation {
	if trustIndex == 0 {
		trustIndex = calculationTrustIndex
	}
	return models.Citation{
		SourceType: models.CitationSourceCalculation,
		Ref:        ref,
		Label:      label,
		Confidence: calculationConfidence,
		TrustIndex: trustIndex,
	}
}

// dataGapCitation marks a fact built from a known-incomplete snapshot
// section with a deliberately depressed trust index, so the mean-trust-index
// guardrail check has a chance to flag it even when every other citation
// looks solid.
func dataGapCitation(ref, label string) models.Citation {
	return models.Citation{
		SourceType: models.CitationSourceCalculation,
		Ref:        ref,
		Label:      label,
		Confidence: calculationConfidence,
		TrustIndex: dataGapTrustIndex,
	}
}
