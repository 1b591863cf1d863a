package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// breakerState is the circuit breaker's three-state machine per spec.md
// §4.1: CLOSED → OPEN after N consecutive failures; OPEN → HALF_OPEN after
// a cooldown; HALF_OPEN → CLOSED on success, → OPEN on failure.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// GenerateOptions mirrors the knobs the Ollama-shaped LLM server accepts.
type GenerateOptions struct {
	Temperature    float64
	TopK           int
	MaxTokens      int
	Timeout        time.Duration
	KeepAlive      time.Duration
	ResponseFormat string // "json" when the caller needs structured output
}

func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Temperature:    0.3,
		MaxTokens:      500,
		Timeout:        20 * time.Second,
		KeepAlive:      5 * time.Minute,
		ResponseFormat: "json",
	}
}

// ModelReply is the Model Gateway's one successful-call shape.
type ModelReply struct {
	Response string
	Done     bool
	EvalCount int
}

type HealthStatus string

const (
	HealthOnline   HealthStatus = "online"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
)

// ModelGateway is the single choke point to the local LLM server. Every
// Generate call goes through the circuit breaker; Embed does not, and Health
// only reads the breaker state. The breaker state is process-local per
// spec.md §5, not shared across worker processes.
type ModelGateway struct {
	baseURL        string
	modelName      string
	embeddingModel string
	embeddingDim   int
	httpClient     *http.Client
	logger         *zap.Logger

	mu              sync.Mutex
	state           breakerState
	consecutiveFail int
	failThreshold   int
	cooldown        time.Duration
	openedAt        time.Time
}

func NewModelGateway(baseURL, modelName, embeddingModel string, embeddingDim int, timeout time.Duration, failThreshold int, cooldownSeconds int, logger *zap.Logger) *ModelGateway {
	return &ModelGateway{
		baseURL:        baseURL,
		modelName:      modelName,
		embeddingModel: embeddingModel,
		embeddingDim:   embeddingDim,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
		state:          breakerClosed,
		failThreshold:  failThreshold,
		cooldown:       time.Duration(cooldownSeconds) * time.Second,
	}
}

// allowRequest reports whether the breaker currently permits an outbound
// call, auto-transitioning OPEN → HALF_OPEN once the cooldown has elapsed.
func (g *ModelGateway) allowRequest() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case breakerOpen:
		if time.Since(g.openedAt) >= g.cooldown {
			g.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (g *ModelGateway) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFail = 0
	g.state = breakerClosed
}

func (g *ModelGateway) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFail++
	if g.state == breakerHalfOpen || g.consecutiveFail >= g.failThreshold {
		g.state = breakerOpen
		g.openedAt = time.Now()
	}
}

// BreakerState exposes the current state for tests and for the health
// endpoint, without consuming a quota slot.
func (g *ModelGateway) BreakerState() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ResetCircuit forces the breaker back to CLOSED. No HTTP route calls it.
func (g *ModelGateway) ResetCircuit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = breakerClosed
	g.consecutiveFail = 0
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options"`
}

type generateResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

// Generate is the Model Gateway's single operation: generate(prompt,
// options) → ModelReply, per spec.md §4.1. It fails immediately with
// KindModelOffline while the breaker is OPEN, and retries transient I/O or
// 5xx responses up to twice with bounded exponential backoff.
func (g *ModelGateway) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*ModelReply, error) {
	if !g.allowRequest() {
		return nil, NewError(KindModelOffline, "the model server is currently unavailable")
	}

	body := generateRequest{
		Model:  g.modelName,
		Prompt: prompt,
		Format: opts.ResponseFormat,
		Options: map[string]interface{}{
			"temperature": opts.Temperature,
			"top_k":       opts.TopK,
			"num_predict": opts.MaxTokens,
			"keep_alive":  opts.KeepAlive.String(),
		},
	}

	const maxAttempts = 3 // initial attempt + up to 2 retries
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, NewError(KindModelOffline, "request cancelled while waiting to retry")
			case <-time.After(backoff):
			}
		}

		reply, retryable, err := g.doGenerate(ctx, body)
		if err == nil {
			g.recordSuccess()
			return reply, nil
		}
		lastErr = err
		if !retryable {
			g.recordFailure()
			return nil, err
		}
	}

	g.recordFailure()
	g.logger.Warn("model gateway exhausted retries", zap.Error(lastErr))
	return nil, NewError(KindModelTransient, "the model server did not respond in time")
}

func (g *ModelGateway) doGenerate(ctx context.Context, body generateRequest) (*ModelReply, bool, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, false, NewError(KindBadRequest, "failed to build model request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, true, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, true, err // transient I/O error: retryable
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("model server returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, false, NewError(KindModelTransient, "model server rejected the request")
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, NewError(KindValidationFailed, "model server returned a non-JSON body")
	}

	return &ModelReply{Response: parsed.Response, Done: parsed.Done, EvalCount: parsed.EvalCount}, false, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed calls the model server's dedicated embedding channel, used only by
// the Retrieval Store's out-of-band ingestion path — never part of the
// core request flow.
func (g *ModelGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: g.embeddingModel, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Embedding) != g.embeddingDim {
		g.logger.Warn("embedding dimension mismatch",
			zap.Int("expected", g.embeddingDim), zap.Int("got", len(parsed.Embedding)))
	}
	return parsed.Embedding, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Health queries the model server's tag listing without consuming a quota
// slot, per spec.md §4.1.
func (g *ModelGateway) Health(ctx context.Context) HealthStatus {
	if g.BreakerState() == "open" {
		return HealthOffline
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/tags", nil)
	if err != nil {
		return HealthOffline
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return HealthOffline
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthDegraded
	}

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return HealthDegraded
	}
	for _, m := range parsed.Models {
		if m.Name == g.modelName {
			return HealthOnline
		}
	}
	return HealthDegraded
}
