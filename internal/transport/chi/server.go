// Package chi exposes the ranking pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/domain"
	logpkg "github.com/kailas-cloud/rankdex/internal/logger"
	"github.com/kailas-cloud/rankdex/internal/usecase/rank"
	"github.com/kailas-cloud/rankdex/internal/version"
)

// Pipeline is the ranking entry point the server fronts. Either the raw
// rank.Service or its caching decorator satisfies it.
type Pipeline interface {
	Rank(
		ctx context.Context, query string,
		docs []*domain.Document, embeddings map[string][]float32,
	) (rank.Result, error)
}

// Pinger reports store reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server handles the ranking HTTP API.
type Server struct {
	pipeline Pipeline
	pinger   Pinger
	logger   *zap.Logger
}

// NewServer creates an HTTP API server. pinger may be nil when no store is
// configured.
func NewServer(pipeline Pipeline, pinger Pinger, logger *zap.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		pinger:   pinger,
		logger:   logger,
	}
}

// Routes mounts the handlers on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/rank", s.RankQuery)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// rankRequest is the POST /v1/rank body. Candidate order carries the
// upstream retrieval positions.
type rankRequest struct {
	Query      string               `json:"query"`
	Candidates []candidateRequest   `json:"candidates"`
	Embeddings map[string][]float32 `json:"embeddings,omitempty"`
}

type candidateRequest struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
	Author        string  `json:"author,omitempty"`
	VectorScore   float64 `json:"vector_score"`
}

type rankResponse struct {
	QueryID   string                 `json:"query_id"`
	Intent    intentResponse         `json:"intent"`
	Documents []*rank.RankedDocument `json:"documents"`
	Cascade   cascadeResponse        `json:"cascade"`
}

type intentResponse struct {
	Fusion    string  `json:"fusion"`
	Diversity string  `json:"diversity"`
	Alpha     float64 `json:"alpha"`
	Beta      float64 `json:"beta"`
	Lambda    float64 `json:"lambda"`
}

type cascadeResponse struct {
	Mode                string  `json:"mode"`
	ModelPath           string  `json:"model_path,omitempty"`
	FeatureVersion      int     `json:"feature_version,omitempty"`
	AverageConfidence   float64 `json:"average_confidence"`
	HighConfidenceCount int     `json:"high_confidence_count"`
	LowConfidenceCount  int     `json:"low_confidence_count"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RankQuery handles POST /v1/rank.
func (s *Server) RankQuery(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	docs := make([]*domain.Document, len(req.Candidates))
	for i, c := range req.Candidates {
		docs[i] = &domain.Document{
			URL:               c.URL,
			Title:             c.Title,
			Description:       c.Description,
			PublishedDate:     c.PublishedDate,
			Author:            c.Author,
			VectorScore:       c.VectorScore,
			RetrievalPosition: i,
		}
	}

	res, err := s.pipeline.Rank(r.Context(), req.Query, docs, req.Embeddings)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resultToResponse(res))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "healthy"
	httpStatus := http.StatusOK

	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("Cache store unreachable", zap.Error(err))
			checks["cache"] = "unhealthy"
			status = "degraded"
		} else {
			checks["cache"] = "healthy"
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":  status,
		"version": version.Version,
		"checks":  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func resultToResponse(res rank.Result) rankResponse {
	docs := res.Documents
	if docs == nil {
		docs = []*rank.RankedDocument{}
	}
	return rankResponse{
		QueryID: res.QueryID,
		Intent: intentResponse{
			Fusion:    string(res.Intent.Fusion()),
			Diversity: string(res.Intent.Diversity()),
			Alpha:     res.Intent.Alpha(),
			Beta:      res.Intent.Beta(),
			Lambda:    res.Intent.Lambda(),
		},
		Documents: docs,
		Cascade: cascadeResponse{
			Mode:                string(res.Cascade.Mode),
			ModelPath:           res.Cascade.ModelPath,
			FeatureVersion:      res.Cascade.FeatureVersion,
			AverageConfidence:   res.Cascade.AverageConfidence,
			HighConfidenceCount: res.Cascade.HighConfidenceCount,
			LowConfidenceCount:  res.Cascade.LowConfidenceCount,
		},
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// The request-scoped logger carries the request ID when the middleware
	// chain is mounted.
	logpkg.FromContext(r.Context()).Warn("rank query failed", zap.Error(err))

	// Cancellation is checked before the provider sentinel: a call aborted
	// mid-flight carries both, and the client going away is the root cause.
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrMissingIdentity.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, statusClientClosedRequest, "request_canceled", "request canceled")
	case errors.Is(err, domain.ErrRelevanceProviderError):
		writeError(w, http.StatusBadGateway, "relevance_provider_error", domain.ErrRelevanceProviderError.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// Nginx convention for a client that went away before the response.
const statusClientClosedRequest = 499

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
