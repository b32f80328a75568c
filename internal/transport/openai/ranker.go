// Package openai implements the semantic relevance ranker against an
// OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
	"github.com/kailas-cloud/rankdex/internal/metrics"
	"github.com/kailas-cloud/rankdex/internal/usecase/rank"
)

// Ranker scores query-document pairs using an OpenAI-compatible API
// (e.g. Nebius). The model sees query and document text together, so it acts
// as a cross-encoder over the candidate pool.
type Ranker struct {
	client        *openai.Client
	model         string
	maxSnippetLen int
	provider      string
	logger        *zap.Logger
}

// Config holds the relevance provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxSnippetLen int
	Provider      string
	Logger        *zap.Logger
}

// NewRanker creates an OpenAI-compatible relevance ranker.
func NewRanker(cfg *Config) *Ranker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Ranker{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         cfg.Model,
		maxSnippetLen: cfg.MaxSnippetLen,
		provider:      cfg.Provider,
		logger:        cfg.Logger,
	}
}

// judgment is one scored document in the model's structured output.
type judgment struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet,omitempty"`
}

type rankResponse struct {
	Scores []judgment `json:"scores"`
}

// Rank implements rank.RelevanceRanker. Judgments are keyed back to URLs by
// the doc index the prompt assigned, so the model may answer in any order.
func (r *Ranker) Rank(ctx context.Context, query string, docs []rank.Candidate) ([]rank.Relevance, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(query, docs),
			},
		},
	}

	start := time.Now()

	resp, err := r.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.RelevanceRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.RelevanceRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return nil, fmt.Errorf("empty completion response: %w", domain.ErrRelevanceProviderError)
	}

	judgments, err := parseJudgments(resp.Choices[0].Message.Content)
	if err != nil {
		metrics.RelevanceRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return nil, fmt.Errorf("parse relevance response: %v: %w", err, domain.ErrRelevanceProviderError)
	}

	metrics.RelevanceRequestsTotal.WithLabelValues(r.provider, r.model, "success").Inc()

	r.logger.Debug("Relevance scoring complete",
		zap.Int("candidates", len(docs)),
		zap.Int("judgments", len(judgments)),
		zap.Duration("duration", duration))

	out := make([]rank.Relevance, 0, len(judgments))
	for _, j := range judgments {
		if j.DocIndex < 0 || j.DocIndex >= len(docs) {
			continue
		}
		out = append(out, rank.Relevance{
			URL:     docs[j.DocIndex].URL,
			Score:   clampScore(j.Score),
			Snippet: r.trimSnippet(j.Snippet),
		})
	}
	return out, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (r *Ranker) HealthCheck(ctx context.Context) error {
	if _, err := r.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

const systemPrompt = "You are a relevance scoring system. " +
	"Score each document's relevance to the query on a 0-100 scale. " +
	`Respond with JSON: {"scores": [{"doc_index": <int>, "score": <number>, "snippet": "<most relevant sentence>"}]}.`

func buildPrompt(query string, docs []rank.Candidate) string {
	var sb strings.Builder

	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments to score:\n")

	for i, d := range docs {
		fmt.Fprintf(&sb, "\n[%d] Title: %s\n", i, d.Title)
		if d.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", d.Description)
		}
	}
	return sb.String()
}

func parseJudgments(content string) ([]judgment, error) {
	content = strings.TrimSpace(content)

	// Some models wrap JSON in markdown fences despite the response format.
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var parsed rankResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, errors.New("no scores in response")
	}
	return parsed.Scores, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (r *Ranker) trimSnippet(snippet string) string {
	if r.maxSnippetLen <= 0 || len(snippet) <= r.maxSnippetLen {
		return snippet
	}
	// Back off to a rune boundary so CJK snippets stay valid UTF-8.
	cut := r.maxSnippetLen
	for cut > 0 && !utf8.RuneStart(snippet[cut]) {
		cut--
	}
	return snippet[:cut]
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrRelevanceProviderError while keeping
// the underlying cause matchable by errors.Is.
func parseAPIError(err error) error {
	wrap := domain.ErrRelevanceProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("relevance API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("relevance API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("relevance API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	// Keep the transport error in the chain: cancellation must stay
	// matchable by errors.Is and the root cause must reach the logs.
	return fmt.Errorf("relevance request failed: %w: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
