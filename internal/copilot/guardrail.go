package copilot

import (
	"encoding/json"
	"regexp"
	"strings"

	"prodplan-copilot/internal/models"
)

const (
	injectionScorePerMatch = 0.15
	injectionBlockScore    = 0.3
	lowTrustThreshold       = 0.6
)

// injectionPatterns are phrases that commonly show up in a prompt-injection
// attempt against a RAG system: asking the model to disregard its
// instructions, reveal its system prompt, or act outside its role.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|any|the) (previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)disregard (all|any|the)? ?(previous|prior|system) (instructions|rules|prompt)`),
	regexp.MustCompile(`(?i)reveal (your|the) system prompt`),
	regexp.MustCompile(`(?i)you are now`),
	regexp.MustCompile(`(?i)act as (if|a|an)`),
	regexp.MustCompile(`(?i)pretend (to be|you are)`),
	regexp.MustCompile(`(?i)do anything now`),
	regexp.MustCompile(`(?i)override (your|the) (rules|restrictions|guidelines)`),
}

// DetectInjection scores free text against known prompt-injection phrasing.
// Each match adds injectionScorePerMatch; a score at or above
// injectionBlockScore blocks the request before it ever reaches the model.
func DetectInjection(text string) (score float64, blocked bool) {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			score += injectionScorePerMatch
		}
	}
	if score > 1 {
		score = 1
	}
	return score, score >= injectionBlockScore
}

// rawLLMResponse is the loose shape a JSON-format model reply is expected
// to match before it is turned into a models.CopilotResponse.
type rawLLMResponse struct {
	Summary string `json:"summary"`
	Facts   []struct {
		Text      string `json:"text"`
		Citations []struct {
			SourceType string  `json:"source_type"`
			Ref        string  `json:"ref"`
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
			TrustIndex float64 `json:"trust_index"`
		} `json:"citations"`
	} `json:"facts"`
	Actions []struct {
		Type             string         `json:"type"`
		Label            string         `json:"label"`
		RequiresApproval bool           `json:"requires_approval"`
		Payload          map[string]any `json:"payload"`
	} `json:"actions"`
}

// ParseModelJSON decodes the model's raw text into rawLLMResponse, tolerant
// of surrounding prose by extracting the outermost {...} span first, so a
// model that wraps JSON in commentary despite being asked not to still
// parses.
func ParseModelJSON(raw string) (*rawLLMResponse, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, NewError(KindValidationFailed, "model response did not contain a JSON object")
	}
	candidate := raw[start : end+1]

	var parsed rawLLMResponse
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, NewError(KindValidationFailed, "model response was not valid JSON")
	}
	return &parsed, nil
}

// refResolver reports whether a citation ref resolves against either a
// retrieved chunk id or a snapshot marker, per spec.md §4.7's grounding
// rule: a ref that resolves to neither is removed, and a fact left with no
// citation is dropped.
type refResolver struct {
	chunkIDs        map[string]bool
	snapshotMarkers map[string]bool
}

func newRefResolver(chunks []models.RankedChunk, snapshotText string) *refResolver {
	r := &refResolver{chunkIDs: map[string]bool{}, snapshotMarkers: map[string]bool{}}
	for _, c := range chunks {
		r.chunkIDs["[RAG:"+c.Chunk.ID.String()+"]"] = true
	}
	markerPattern := regexp.MustCompile(`\[DB:[^\]]+\]`)
	for _, m := range markerPattern.FindAllString(snapshotText, -1) {
		r.snapshotMarkers[m] = true
	}
	return r
}

func (r *refResolver) resolves(ref string) bool {
	return r.chunkIDs[ref] || r.snapshotMarkers[ref]
}

// allowedActionTypes is the closed set of action types the Guardrail will let
// through to a caller; anything the model proposes outside this set (a
// hallucinated or injected action type) is dropped and flagged, per spec.md
// §3 invariant 3 and §4.7 step 2.
var allowedActionTypes = map[models.ActionType]bool{
	models.ActionCreateDecisionPR: true,
	models.ActionDryRun:           true,
	models.ActionOpenEntity:       true,
	models.ActionRunRunbook:       true,
}

// GroundAndNormalize turns a parsed model reply into a CopilotResponse,
// dropping any fact whose every citation fails to resolve (a hard filter,
// stricter than merely warning) and computing the mean trust index across
// surviving citations so the caller can flag low-confidence answers.
func GroundAndNormalize(parsed *rawLLMResponse, resolver *refResolver, intent models.Intent) (*models.CopilotResponse, float64, int) {
	resp := &models.CopilotResponse{
		Type:    models.ResponseAnswer,
		Intent:  intent,
		Summary: parsed.Summary,
	}

	var trustSum float64
	var trustCount int
	droppedFacts := 0

	for _, f := range parsed.Facts {
		var citations []models.Citation
		for _, c := range f.Citations {
			if !resolver.resolves(c.Ref) {
				continue
			}
			citations = append(citations, models.Citation{
				SourceType: models.CitationSourceType(c.SourceType),
				Ref:        c.Ref,
				Label:      c.Label,
				Confidence: c.Confidence,
				TrustIndex: c.TrustIndex,
			})
			trustSum += c.TrustIndex
			trustCount++
		}
		if len(citations) == 0 {
			droppedFacts++
			continue
		}
		resp.Facts = append(resp.Facts, models.Fact{Text: f.Text, Citations: citations})
	}

	droppedActions := 0
	for _, a := range parsed.Actions {
		actionType := models.ActionType(a.Type)
		if !allowedActionTypes[actionType] {
			droppedActions++
			continue
		}
		resp.Actions = append(resp.Actions, models.Action{
			Type:             actionType,
			Label:            a.Label,
			RequiresApproval: a.RequiresApproval,
			Payload:          a.Payload,
		})
	}
	if droppedActions > 0 {
		resp.AddWarning(models.WarningSecurityFlag, "one or more proposed actions were outside the allowed action set and were dropped")
	}

	meanTrust := 1.0
	if trustCount > 0 {
		meanTrust = trustSum / float64(trustCount)
	}

	if droppedFacts > 0 && len(resp.Facts) == 0 {
		resp.AddWarning(models.WarningInsufficientEvidence, "the model's claims could not be grounded in retrieved context")
	}
	if trustCount > 0 && meanTrust < lowTrustThreshold {
		resp.AddWarning(models.WarningLowTrustIndex, "the grounded citations have below-threshold trust")
	}

	return resp, meanTrust, droppedFacts
}
