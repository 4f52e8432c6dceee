package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"clashsub/backend/domain"
	"clashsub/backend/metrics"
	"clashsub/backend/repository"
	"clashsub/backend/repository/memory"
	"clashsub/backend/service/applog"
	"clashsub/backend/service/process"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClash struct {
	selected  string
	since     int64
	startFail bool
}

func (f *fakeClash) UpdateSubscription(context.Context) domain.UpdateResult {
	return domain.UpdateResult{Success: true, ProxyCount: 2, Format: "clash"}
}

func (f *fakeClash) Start(context.Context) domain.ActionResult {
	if f.startFail {
		return domain.ActionResult{Success: false, Message: "subscription url is not configured"}
	}
	return domain.ActionResult{Success: true, Message: "started"}
}

func (f *fakeClash) Stop(context.Context) domain.ActionResult {
	return domain.ActionResult{Success: true, Message: "stopped"}
}

func (f *fakeClash) SelectProxy(_ context.Context, name string) domain.SelectResult {
	f.selected = name
	return domain.SelectResult{Success: true, Node: name, Group: "GLOBAL"}
}

func (f *fakeClash) CurrentProxy(context.Context) string { return f.selected }

func (f *fakeClash) ListNodes(context.Context) []domain.NodeInfo {
	return []domain.NodeInfo{{Name: "A", Type: "ss"}, {Name: "B", Type: "ss"}}
}

func (f *fakeClash) Status(context.Context) domain.Status {
	return domain.Status{Running: true, CurrentProxy: f.selected}
}

func (f *fakeClash) Logs(since int64) process.LogChunk {
	f.since = since
	return process.LogChunk{From: since, To: since}
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestClashLogs_InvalidSince(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{Clash: &fakeClash{}})
	for _, since := range []string{"abc", "-1"} {
		w := serve(router, http.MethodGet, "/clash/logs?since="+since, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("since=%s: expected status %d, got %d", since, http.StatusBadRequest, w.Code)
		}
	}
}

func TestClashLogs_PassesOffset(t *testing.T) {
	t.Parallel()

	fake := &fakeClash{}
	router := NewRouter(Deps{Clash: fake})
	w := serve(router, http.MethodGet, "/clash/logs?since=128", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if fake.since != 128 {
		t.Fatalf("expected since=128, got %d", fake.since)
	}
}

func TestClashSelect(t *testing.T) {
	t.Parallel()

	fake := &fakeClash{}
	router := NewRouter(Deps{Clash: fake})

	if w := serve(router, http.MethodPut, "/clash/select", `{"name":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for empty name, got %d", http.StatusBadRequest, w.Code)
	}
	if w := serve(router, http.MethodPut, "/clash/select", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for bad json, got %d", http.StatusBadRequest, w.Code)
	}

	w := serve(router, http.MethodPut, "/clash/select", `{"name":"B"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var res domain.SelectResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.Group != "GLOBAL" || fake.selected != "B" {
		t.Fatalf("unexpected select result %+v", res)
	}

	w = serve(router, http.MethodGet, "/clash/current", "")
	if !strings.Contains(w.Body.String(), `"current":"B"`) {
		t.Fatalf("expected current B, got %s", w.Body.String())
	}
}

func TestClashStart_FailureStatus(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{Clash: &fakeClash{startFail: true}})
	w := serve(router, http.MethodPost, "/clash/start", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if !strings.Contains(w.Body.String(), "subscription url") {
		t.Fatalf("expected failure message, got %s", w.Body.String())
	}
}

func TestClashNodesAndStatus(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{Clash: &fakeClash{}})

	w := serve(router, http.MethodGet, "/clash/nodes", "")
	var payload struct {
		Nodes []domain.NodeInfo `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(payload.Nodes))
	}

	w = serve(router, http.MethodGet, "/clash/status", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"running":true`) {
		t.Fatalf("unexpected status response %d %s", w.Code, w.Body.String())
	}
}

func TestSettings_PutKnownKey(t *testing.T) {
	t.Parallel()

	repo := memory.NewSettingsRepo(memory.NewStore(nil))
	router := NewRouter(Deps{Clash: &fakeClash{}, Settings: repo})

	w := serve(router, http.MethodPut, "/settings/"+repository.SettingSubscriptionURL, `{"value":"https://example.com/sub"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got, _ := repo.Get(context.Background(), repository.SettingSubscriptionURL); got != "https://example.com/sub" {
		t.Fatalf("expected stored url, got %q", got)
	}

	if w := serve(router, http.MethodPut, "/settings/unknown", `{"value":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for unknown key, got %d", http.StatusBadRequest, w.Code)
	}

	w = serve(router, http.MethodGet, "/settings", "")
	if !strings.Contains(w.Body.String(), "https://example.com/sub") {
		t.Fatalf("expected url in settings listing, got %s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{Clash: &fakeClash{}})
	w := serve(router, http.MethodOptions, "/clash/status", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header")
	}
}

func TestAppLogsAndMetrics(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("hello\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	router := NewRouter(Deps{
		Clash:   &fakeClash{},
		AppLog:  applog.New(path, time.Now()),
		Metrics: collector.Handler(),
	})

	w := serve(router, http.MethodGet, "/app/logs?since=0", "")
	var snap applog.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Text != "hello\n" || snap.To != 6 {
		t.Fatalf("unexpected app log snapshot %+v", snap)
	}
	if w := serve(router, http.MethodGet, "/app/logs?since=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w = serve(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "clashsub_core_running") {
		t.Fatalf("unexpected metrics response %d", w.Code)
	}
}
