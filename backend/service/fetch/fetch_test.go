package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"clashsub/backend/service/subscription"
)

const yamlBody = `proxies:
  - {name: A, type: ss, server: a.example.com, port: 443, cipher: aes-128-gcm, password: x}
`

const linkBody = "hy2://pw@h.example.com:443#H1\n"

type recorder struct {
	mu       sync.Mutex
	queries  []string
	agents   []string
	accept   []string
	handlers func(w http.ResponseWriter, r *http.Request)
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec.mu.Lock()
	rec.queries = append(rec.queries, r.URL.RawQuery)
	rec.agents = append(rec.agents, r.Header.Get("User-Agent"))
	rec.accept = append(rec.accept, r.Header.Get("Accept"))
	rec.mu.Unlock()
	rec.handlers(w, r)
}

func TestFetch_StructuredNeedsNoRetry(t *testing.T) {
	t.Parallel()

	rec := &recorder{handlers: func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(yamlBody))
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	res, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL+"/sub")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Format != subscription.FormatStructured || res.Config == nil {
		t.Fatalf("expected structured config, got %+v", res)
	}
	if len(rec.queries) != 1 {
		t.Fatalf("expected a single request, got %v", rec.queries)
	}
	if rec.agents[0] != "ClashMetaForAndroid/2.8.9.Meta" || rec.accept[0] != "*/*" {
		t.Fatalf("unexpected request headers: ua=%q accept=%q", rec.agents[0], rec.accept[0])
	}
}

func TestFetch_FlagRetryProvidesBaseAndKeepsURINodes(t *testing.T) {
	t.Parallel()

	rec := &recorder{handlers: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("flag") == "clash" {
			_, _ = w.Write([]byte(yamlBody))
			return
		}
		_, _ = w.Write([]byte(linkBody))
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	res, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL+"/sub?token=abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.UsedFlagRetry || res.Config == nil || len(res.Config.Proxies) != 1 {
		t.Fatalf("expected config from flag retry, got %+v", res)
	}
	if len(res.Nodes) != 1 || res.Nodes[0].Name != "H1" {
		t.Fatalf("expected URI node from primary body, got %+v", res.Nodes)
	}
	if len(rec.queries) != 2 || rec.queries[1] != "token=abc&flag=clash" {
		t.Fatalf("expected flag appended with &, got %v", rec.queries)
	}
}

func TestFetch_FlagRetryFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	rec := &recorder{handlers: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("flag") == "clash" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(linkBody))
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	res, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Config != nil || len(res.Nodes) != 1 || res.Format != subscription.FormatURIList {
		t.Fatalf("expected URI-only result, got %+v", res)
	}
	if rec.queries[1] != "flag=clash" {
		t.Fatalf("expected ?flag=clash on retry, got %q", rec.queries[1])
	}
}

func TestFetch_PrimaryFailureIsDownloadError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL)
	var de *DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if de.Status != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", de.Status)
	}
}

func TestFetch_UnparseableCarriesSnippet(t *testing.T) {
	t.Parallel()

	body := "<html>" + strings.Repeat("x", 300) + "</html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := New(srv.Client(), Options{}).Fetch(context.Background(), srv.URL)
	var ue *subscription.UnparseableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnparseableError, got %v", err)
	}
	if len(ue.Snippet) != 100 || !strings.HasPrefix(ue.Snippet, "<html>") {
		t.Fatalf("expected 100-char prefix snippet, got %q", ue.Snippet)
	}
}

func TestFetch_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	_, err := New(srv.Client(), Options{MaxBytes: 16}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Options{}).Fetch(context.Background(), "ftp://example.com/sub")
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

func TestWithClashFlag(t *testing.T) {
	t.Parallel()

	if got := WithClashFlag("https://x/sub"); got != "https://x/sub?flag=clash" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := WithClashFlag("https://x/sub?a=1"); got != "https://x/sub?a=1&flag=clash" {
		t.Fatalf("unexpected url %q", got)
	}
}
