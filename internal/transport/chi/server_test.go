package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/rankdex/internal/domain"
	logpkg "github.com/kailas-cloud/rankdex/internal/logger"
	domint "github.com/kailas-cloud/rankdex/internal/domain/intent"
	"github.com/kailas-cloud/rankdex/internal/usecase/cascade"
	"github.com/kailas-cloud/rankdex/internal/usecase/rank"
)

// --- Mocks ---

type mockPipeline struct {
	result   rank.Result
	err      error
	lastDocs []*domain.Document
}

func (m *mockPipeline) Rank(
	_ context.Context, _ string, docs []*domain.Document, _ map[string][]float32,
) (rank.Result, error) {
	m.lastDocs = docs
	return m.result, m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func newTestRouter(p Pipeline, pinger Pinger) *chi.Mux {
	r := chi.NewRouter()
	NewServer(p, pinger, zap.NewNop()).Routes(r)
	return r
}

func rankBody(t *testing.T, query string, urls ...string) *bytes.Buffer {
	t.Helper()
	cands := make([]map[string]any, len(urls))
	for i, u := range urls {
		cands[i] = map[string]any{
			"url":          u,
			"title":        "title " + u,
			"vector_score": 0.5,
		}
	}
	body, err := json.Marshal(map[string]any{"query": query, "candidates": cands})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewBuffer(body)
}

func sampleResult() rank.Result {
	return rank.Result{
		QueryID: "q-123",
		Intent: domint.New(
			domint.FusionBalanced, domint.DiversityBalanced,
			0.6, 0.4, 0.7, domint.Signals{},
		),
		Documents: []*rank.RankedDocument{
			{URL: "a", Title: "title a", LLMScore: 90},
		},
		Cascade: cascade.Metadata{Mode: cascade.ModeDisabled, FeatureVersion: 3},
	}
}

// --- Tests ---

func TestRankQuery_OK(t *testing.T) {
	p := &mockPipeline{result: sampleResult()}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a", "b"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp rankResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.QueryID != "q-123" {
		t.Errorf("query_id = %s, want q-123", resp.QueryID)
	}
	if resp.Intent.Fusion != "balanced" || resp.Intent.Alpha != 0.6 {
		t.Errorf("intent = %+v", resp.Intent)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].URL != "a" {
		t.Errorf("documents = %+v", resp.Documents)
	}
	if resp.Cascade.Mode != "disabled" {
		t.Errorf("cascade mode = %s, want disabled", resp.Cascade.Mode)
	}
}

func TestRankQuery_AssignsRetrievalPositions(t *testing.T) {
	p := &mockPipeline{result: sampleResult()}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a", "b", "c"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if len(p.lastDocs) != 3 {
		t.Fatalf("pipeline saw %d docs, want 3", len(p.lastDocs))
	}
	for i, d := range p.lastDocs {
		if d.RetrievalPosition != i {
			t.Errorf("doc %s: RetrievalPosition = %d, want %d", d.URL, d.RetrievalPosition, i)
		}
		if d.VectorScore != 0.5 {
			t.Errorf("doc %s: VectorScore = %g, want 0.5", d.URL, d.VectorScore)
		}
	}
}

func TestRankQuery_BadJSON(t *testing.T) {
	router := newTestRouter(&mockPipeline{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRankQuery_MissingIdentity(t *testing.T) {
	p := &mockPipeline{err: domain.ErrMissingIdentity}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", ""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v", err)
	}
	if resp.Code != "validation_failed" {
		t.Errorf("code = %s, want validation_failed", resp.Code)
	}
}

func TestRankQuery_ProviderErrorIs502(t *testing.T) {
	p := &mockPipeline{err: domain.ErrRelevanceProviderError}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestRankQuery_CanceledIs499(t *testing.T) {
	p := &mockPipeline{err: context.Canceled}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != statusClientClosedRequest {
		t.Errorf("status = %d, want %d", rec.Code, statusClientClosedRequest)
	}
}

func TestRankQuery_CanceledDuringRelevanceIs499(t *testing.T) {
	// A relevance call aborted mid-flight carries both the cancellation and
	// the provider sentinel; the client going away wins.
	err := fmt.Errorf("relevance ranking: relevance request failed: %w: %w",
		context.Canceled, domain.ErrRelevanceProviderError)
	p := &mockPipeline{err: err}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != statusClientClosedRequest {
		t.Errorf("status = %d, want %d", rec.Code, statusClientClosedRequest)
	}
}

func TestRankQuery_ErrorUsesRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &mockPipeline{err: domain.ErrRelevanceProviderError}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logpkg.ContextWithLogger(req.Context(), zap.New(core))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewServer(p, nil, zap.NewNop()).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if logs.FilterMessage("rank query failed").Len() != 1 {
		t.Errorf("expected 1 warning through the request-scoped logger, got %d entries", logs.Len())
	}
}

func TestRankQuery_UnknownErrorIs500(t *testing.T) {
	p := &mockPipeline{err: errors.New("unexpected")}
	router := newTestRouter(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/rank", rankBody(t, "query", "a"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "unexpected") {
		t.Error("internal error details must not leak to clients")
	}
}

func TestHealthCheck_NoStore(t *testing.T) {
	router := newTestRouter(&mockPipeline{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthCheck_StoreDown(t *testing.T) {
	router := newTestRouter(&mockPipeline{}, &mockPinger{err: errors.New("refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Cache loss degrades, it does not fail the service.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(&mockPipeline{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
