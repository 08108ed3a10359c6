package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WessleyAI/service-catalog/engine/catalog"
	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/pkg/bootstrap"
	"github.com/WessleyAI/service-catalog/pkg/metrics"
)

type fakeCatalog struct {
	got       []domain.Entry
	result    catalog.ImportResult
	importErr error
	reset     catalog.ResetResult
}

func (f *fakeCatalog) Import(_ context.Context, entries []domain.Entry) (catalog.ImportResult, error) {
	f.got = entries
	return f.result, f.importErr
}

func (f *fakeCatalog) Reset(context.Context) catalog.ResetResult { return f.reset }

type fakeRetriever struct{}

func (fakeRetriever) RetrieveKnowledge(_ context.Context, c *domain.Context) *domain.Context {
	var cands []domain.Candidate
	for _, h := range c.Hypotheses {
		if h.ShouldCallRAG {
			cands = append(cands, domain.Candidate{HypothesisID: h.ID, ServiceID: "svc-" + h.ID, Summary: domain.NoDetails})
		}
	}
	c.RetrievalEvidence = &domain.RetrievalEvidence{ServiceCandidates: cands}
	return c
}

func newTestServer(t *testing.T, cat *fakeCatalog, stats statsFunc) *httptest.Server {
	t.Helper()
	if stats == nil {
		stats = func(context.Context) (bootstrap.Stats, error) { return bootstrap.Stats{Records: 2}, nil }
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.New()
	reg.Counter("catalog_import_entries_total", "").Inc()
	srv := httptest.NewServer(newHandler(cat, fakeRetriever{}, stats, reg.Handler(), "*", log))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestImportEndpoint(t *testing.T) {
	cat := &fakeCatalog{result: catalog.ImportResult{Status: catalog.StatusCompleted, SuccessCount: 1}}
	srv := newTestServer(t, cat, nil)

	body := `[{"タイトル":"児童手当","サービス内容":"手当を支給","URL":{"items":"https://example.jp/j"},"extra":1}]`
	resp, out := do(t, http.MethodPost, srv.URL+"/api/v1/service-catalog/import", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out["status"] != "completed" || out["success_count"] != float64(1) {
		t.Fatalf("got %v", out)
	}
	if _, ok := out["underlying_error"]; ok {
		t.Fatal("underlying_error only appears on partial failure")
	}
	if len(cat.got) != 1 || cat.got[0].Title != "児童手当" || cat.got[0].URL != "https://example.jp/j" {
		t.Fatalf("decoded %+v", cat.got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("request id should be echoed")
	}
}

func TestImportEndpoint_PartialFailureIs200(t *testing.T) {
	cat := &fakeCatalog{result: catalog.ImportResult{
		Status: catalog.StatusPartialFailure, SuccessCount: 3, ErrorCount: 2, UnderlyingError: "qdrant down",
	}}
	srv := newTestServer(t, cat, nil)

	resp, out := do(t, http.MethodPost, srv.URL+"/api/v1/service-catalog/import", `[{}]`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out["status"] != "partial_failure" || out["underlying_error"] != "qdrant down" || out["error_count"] != float64(2) {
		t.Fatalf("got %v", out)
	}
}

func TestImportEndpoint_BadInput(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	for _, body := range []string{"not json", `{"タイトル":"x"}`} {
		resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/service-catalog/import", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestImportEndpoint_SetupError(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{importErr: errors.New("catalog: prepare vector index: unavailable")}, nil)
	resp, out := do(t, http.MethodPost, srv.URL+"/api/v1/service-catalog/import", `[]`)
	if resp.StatusCode != http.StatusInternalServerError || out["error"] == nil {
		t.Fatalf("got %d %v", resp.StatusCode, out)
	}
}

func TestImportEndpoint_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/service-catalog/import", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestResetEndpoint(t *testing.T) {
	cat := &fakeCatalog{reset: catalog.ResetResult{Status: catalog.StatusSuccess, Message: "service catalog reset"}}
	srv := newTestServer(t, cat, nil)
	resp, out := do(t, http.MethodDelete, srv.URL+"/api/v1/service-catalog/reset", "")
	if resp.StatusCode != http.StatusOK || out["status"] != "success" {
		t.Fatalf("got %d %v", resp.StatusCode, out)
	}
	if _, ok := out["details"]; ok {
		t.Fatal("details only appear on error")
	}
}

func TestResetEndpoint_Error(t *testing.T) {
	cat := &fakeCatalog{reset: catalog.ResetResult{
		Status:  catalog.StatusError,
		Message: "vector index: timeout",
		Details: &catalog.ResetDetails{RecordStoreCleared: true},
	}}
	srv := newTestServer(t, cat, nil)
	resp, out := do(t, http.MethodDelete, srv.URL+"/api/v1/service-catalog/reset", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	details, _ := out["details"].(map[string]any)
	if details["record_store_cleared"] != true || details["vector_index_cleared"] != false {
		t.Fatalf("got %v", out)
	}
}

func TestRetrieveEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	body := `{"user":"u1","hypotheses":[{"id":"h1","should_call_rag":true,"search_query":"家賃"},{"id":"h2","should_call_rag":false}]}`
	resp, out := do(t, http.MethodPost, srv.URL+"/api/v1/rag/retrieve", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out["user"] != "u1" {
		t.Fatalf("caller keys should be preserved, got %v", out)
	}
	ev, _ := out["retrieval_evidence"].(map[string]any)
	cands, _ := ev["service_candidates"].([]any)
	if len(cands) != 1 {
		t.Fatalf("got %v", out)
	}
}

func TestRetrieveEndpoint_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/rag/retrieve", "{")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	resp, out := do(t, http.MethodGet, srv.URL+"/api/v1/service-catalog/stats", "")
	if resp.StatusCode != http.StatusOK || out["records"] != float64(2) {
		t.Fatalf("got %d %v", resp.StatusCode, out)
	}

	failing := func(context.Context) (bootstrap.Stats, error) { return bootstrap.Stats{}, errors.New("db closed") }
	srv = newTestServer(t, &fakeCatalog{}, failing)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/service-catalog/stats", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeCatalog{}, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "catalog_import_entries_total 1") {
		t.Fatalf("got %s", buf.String())
	}
}
