package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devKanishk15/postgres-ai/internal/agent"
	"github.com/devKanishk15/postgres-ai/internal/llm"
	"github.com/devKanishk15/postgres-ai/internal/tools"
	"github.com/devKanishk15/postgres-ai/pkg/models"
)

type stubCompleter struct{ content string }

func (s stubCompleter) Complete(ctx context.Context, m []models.ChatMessage, d []llm.ToolDefinition) (*llm.Completion, error) {
	return &llm.Completion{Content: s.content}, nil
}

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, name, rawArgs string) (string, string) {
	if name == tools.ToolGetHealthSummary {
		return `{"status":"healthy","timestamp":"2026-01-28T14:30:00Z","checks":[],"alerts":[]}`, "status healthy, 0 alerts"
	}
	return `{"ok":true}`, "executed " + name
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	a := agent.New(stubCompleter{content: "all good"}, stubExecutor{}, nil, 6)
	h := New(a, nil, "test")
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestChat(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/chat", "application/json",
		strings.NewReader(`{"message":"how is the database?"}`))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Analysis == nil || *result.Analysis != "all good" {
		t.Errorf("analysis = %v", result.Analysis)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /chat: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestChat_InvalidBody(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDBHealth(t *testing.T) {
	srv := newTestServer(t)

	var res tools.HealthSummaryResult
	resp := getJSON(t, srv.URL+"/db-health", &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if res.Status != "healthy" {
		t.Errorf("status = %q, want healthy", res.Status)
	}
}

func TestParseTime(t *testing.T) {
	srv := newTestServer(t)

	var tr models.TimeRange
	resp := getJSON(t, srv.URL+"/parse-time?expression=last+30+minutes", &tr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if tr.EndTS-tr.StartTS != 1800 {
		t.Errorf("window = %ds, want 1800", tr.EndTS-tr.StartTS)
	}

	resp = getJSON(t, srv.URL+"/parse-time", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing expression: status = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var list struct {
		Count   int               `json:"count"`
		Metrics []json.RawMessage `json:"metrics"`
	}
	resp := getJSON(t, srv.URL+"/metrics", &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if list.Count < 30 || list.Count != len(list.Metrics) {
		t.Errorf("count = %d with %d metrics", list.Count, len(list.Metrics))
	}

	var def struct {
		Key string `json:"key"`
	}
	resp = getJSON(t, srv.URL+"/metrics/active_connections", &def)
	if resp.StatusCode != http.StatusOK || def.Key != "active_connections" {
		t.Errorf("status = %d, key = %q", resp.StatusCode, def.Key)
	}

	resp = getJSON(t, srv.URL+"/metrics/bogus", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown metric: status = %d, want 404", resp.StatusCode)
	}
}

func TestNewConversation(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/conversations", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /conversations: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body["conversation_id"]) != 36 {
		t.Errorf("conversation_id = %q, want a UUID", body["conversation_id"])
	}
}

func TestVersionAndRoot(t *testing.T) {
	srv := newTestServer(t)

	var v map[string]string
	getJSON(t, srv.URL+"/version", &v)
	if v["version"] != "test" || v["service"] != "postgres-ai" {
		t.Errorf("version payload = %v", v)
	}

	var root map[string]any
	getJSON(t, srv.URL+"/", &root)
	if root["service"] != "postgres-ai" {
		t.Errorf("root payload = %v", root)
	}
}
