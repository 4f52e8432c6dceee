package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"clashsub/backend/domain"
	"clashsub/backend/persist"
)

// fakeCore 模拟内核控制接口。
type fakeCore struct {
	mu      sync.Mutex
	secret  string
	groups  map[string]ProxyInfo
	reject  map[string]int
	puts    []string
	gets    []string
	reloads []string
}

func newFakeCore(groups map[string]ProxyInfo) *fakeCore {
	return &fakeCore{groups: groups, reject: map[string]int{}}
}

func (f *fakeCore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.secret != "" && r.Header.Get("Authorization") != "Bearer "+f.secret {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/version":
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "v1.18.0"})
	case r.Method == http.MethodGet && r.URL.Path == "/proxies":
		_ = json.NewEncoder(w).Encode(ProxiesResponse{Proxies: f.groups})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/proxies/"):
		name := strings.TrimPrefix(r.URL.Path, "/proxies/")
		f.gets = append(f.gets, name)
		info, ok := f.groups[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		info.Name = name
		_ = json.NewEncoder(w).Encode(info)
	case r.Method == http.MethodPut && r.URL.Path == "/configs":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.reloads = append(f.reloads, body["path"])
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/proxies/"):
		group := strings.TrimPrefix(r.URL.Path, "/proxies/")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.puts = append(f.puts, group)
		if code, ok := f.reject[group]; ok {
			w.WriteHeader(code)
			return
		}
		info, ok := f.groups[group]
		if !ok || !contains(info.All, body["name"]) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		info.Now = body["name"]
		f.groups[group] = info
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCore) putCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func newTestController(t *testing.T, core *fakeCore) (*Controller, string) {
	t.Helper()
	srv := httptest.NewServer(core)
	t.Cleanup(srv.Close)
	path := filepath.Join(t.TempDir(), "config.yaml")
	return NewController(srv.URL, path, srv.Client()), path
}

func TestSelectNode_PrefersMemberSelector(t *testing.T) {
	t.Parallel()

	core := newFakeCore(map[string]ProxyInfo{
		"GLOBAL": {Type: TypeSelector, All: []string{"B", "DIRECT"}},
		"Auto":   {Type: TypeURLTest, All: []string{"A", "B"}},
		"Main":   {Type: TypeSelector, All: []string{"A", "B", "DIRECT"}},
	})
	ctrl, _ := newTestController(t, core)

	group, err := ctrl.SelectNode(context.Background(), "A")
	if err != nil {
		t.Fatalf("SelectNode: %v", err)
	}
	if group != "Main" {
		t.Fatalf("expected Main, got %s", group)
	}
	if calls := core.putCalls(); !reflect.DeepEqual(calls, []string{"Main"}) {
		t.Fatalf("expected a single write to Main, got %v", calls)
	}
	if ctrl.CachedSelection() != "A" {
		t.Fatalf("expected cached selection A, got %q", ctrl.CachedSelection())
	}
}

func TestSelectNode_FallsThroughRejectedGroups(t *testing.T) {
	t.Parallel()

	core := newFakeCore(map[string]ProxyInfo{
		"Alpha": {Type: TypeSelector, All: []string{"A"}},
		"Beta":  {Type: TypeSelector, All: []string{"A"}},
	})
	core.reject["Alpha"] = http.StatusNotFound
	ctrl, _ := newTestController(t, core)

	group, err := ctrl.SelectNode(context.Background(), "A")
	if err != nil {
		t.Fatalf("SelectNode: %v", err)
	}
	if group != "Beta" {
		t.Fatalf("expected Beta, got %s", group)
	}
}

func TestSelectNode_EscapesGroupName(t *testing.T) {
	t.Parallel()

	core := newFakeCore(map[string]ProxyInfo{
		"🚀 节点选择": {Type: TypeSelector, All: []string{"A"}},
	})
	ctrl, _ := newTestController(t, core)

	group, err := ctrl.SelectNode(context.Background(), "A")
	if err != nil {
		t.Fatalf("SelectNode: %v", err)
	}
	if group != "🚀 节点选择" {
		t.Fatalf("unexpected group %q", group)
	}
}

func TestSelectNode_ExhaustedReturnsSelectionError(t *testing.T) {
	t.Parallel()

	core := newFakeCore(map[string]ProxyInfo{
		"Main": {Type: TypeSelector, All: []string{"A"}},
	})
	core.reject["Main"] = http.StatusInternalServerError
	ctrl, _ := newTestController(t, core)

	_, err := ctrl.SelectNode(context.Background(), "A")
	var selErr *SelectionError
	if !errors.As(err, &selErr) {
		t.Fatalf("expected SelectionError, got %v", err)
	}
	calls := core.putCalls()
	want := append([]string{"Main"}, FallbackGroupNames...)
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("expected candidate order %v, got %v", want, calls)
	}
}

func TestSelectNode_NotRunning(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	ctrl := NewController(srv.URL, filepath.Join(t.TempDir(), "config.yaml"), nil)

	if _, err := ctrl.SelectNode(context.Background(), "A"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if ctrl.IsRunning(context.Background()) {
		t.Fatalf("expected not running")
	}
}

func TestCurrentSelection_GlobalThenSelectorThenCache(t *testing.T) {
	t.Parallel()

	core := newFakeCore(map[string]ProxyInfo{
		"GLOBAL": {Type: TypeSelector, Now: "G"},
		"Main":   {Type: TypeSelector, Now: "M"},
	})
	ctrl, _ := newTestController(t, core)

	if got := ctrl.CurrentSelection(context.Background()); got != "G" {
		t.Fatalf("expected G, got %q", got)
	}
	core.mu.Lock()
	gets := append([]string(nil), core.gets...)
	core.mu.Unlock()
	if !reflect.DeepEqual(gets, []string{"GLOBAL"}) {
		t.Fatalf("expected a single GET of GLOBAL, got %v", gets)
	}

	core.mu.Lock()
	core.groups["GLOBAL"] = ProxyInfo{Type: TypeSelector}
	core.mu.Unlock()
	if got := ctrl.CurrentSelection(context.Background()); got != "M" {
		t.Fatalf("expected M, got %q", got)
	}

	core.mu.Lock()
	core.groups = map[string]ProxyInfo{}
	core.mu.Unlock()
	if got := ctrl.CurrentSelection(context.Background()); got != "M" {
		t.Fatalf("expected cached M, got %q", got)
	}
}

func TestController_SecretFromPersistedConfig(t *testing.T) {
	t.Parallel()

	core := newFakeCore(map[string]ProxyInfo{})
	core.secret = "s3cret"
	ctrl, path := newTestController(t, core)

	if ctrl.IsRunning(context.Background()) {
		t.Fatalf("expected unauthorized probe to report not running")
	}
	cfg := &domain.SubscriptionConfig{
		MixedPort: 7890,
		Secret:    "s3cret",
		Proxies:   []domain.ProxyNode{{Name: "A", Type: "ss"}},
	}
	if err := persist.WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if !ctrl.IsRunning(context.Background()) {
		t.Fatalf("expected probe with secret to succeed")
	}
	if !ctrl.Reload(context.Background()) {
		t.Fatalf("expected reload to succeed")
	}
	core.mu.Lock()
	defer core.mu.Unlock()
	if len(core.reloads) != 1 || !filepath.IsAbs(core.reloads[0]) {
		t.Fatalf("expected one reload with absolute path, got %v", core.reloads)
	}
}

func TestListNodes_FileThenCache(t *testing.T) {
	t.Parallel()

	ctrl := NewController("http://127.0.0.1:1", filepath.Join(t.TempDir(), "config.yaml"), nil)
	if nodes := ctrl.ListNodes(); len(nodes) != 0 {
		t.Fatalf("expected no nodes, got %v", nodes)
	}

	cfg := &domain.SubscriptionConfig{Proxies: []domain.ProxyNode{{Name: "X", Type: "ss"}, {Name: "Y", Type: "trojan"}}}
	if err := persist.WriteConfig(ctrl.configPath, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	nodes := ctrl.ListNodes()
	if len(nodes) != 2 || nodes[0].Name != "X" || nodes[1].Name != "Y" || nodes[0].ID == "" {
		t.Fatalf("expected nodes from file, got %+v", nodes)
	}

	if err := os.Remove(ctrl.configPath); err != nil {
		t.Fatalf("remove config: %v", err)
	}
	nodes = ctrl.ListNodes()
	if len(nodes) != 2 || nodes[0].Name != "X" {
		t.Fatalf("expected cached nodes after config removal, got %+v", nodes)
	}

	ctrl.InvalidateCache()
	if nodes := ctrl.ListNodes(); len(nodes) != 0 {
		t.Fatalf("expected empty list after invalidation, got %+v", nodes)
	}
}
