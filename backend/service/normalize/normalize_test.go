package normalize

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"clashsub/backend/domain"
)

func node(name string) domain.ProxyNode {
	n := domain.ProxyNode{Name: name, Type: "ss"}
	n.Fields.Set("server", strings.ToLower(name)+".example.com")
	n.Fields.Set("port", 443)
	return n
}

func TestMerge_RenamesCollidingURINodes(t *testing.T) {
	t.Parallel()

	base := &domain.SubscriptionConfig{Proxies: []domain.ProxyNode{node("A"), node("B"), node("A-2")}}
	uri := []domain.ProxyNode{node("A"), node("C")}

	cfg, err := Merge(base, uri, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got := cfg.ProxyNames()
	want := []string{"A", "B", "A-2", "A-3", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if base.Proxies[0].Name != "A" || len(base.Proxies) != 3 {
		t.Fatalf("expected base to stay untouched, got %v", base.ProxyNames())
	}
}

func TestMerge_ForcesControlSettingsAndDefaultRules(t *testing.T) {
	t.Parallel()

	base := &domain.SubscriptionConfig{
		MixedPort:          1080,
		AllowLAN:           true,
		Mode:               "rule",
		ExternalController: "0.0.0.0:9999",
		Secret:             "s3cret",
		Proxies:            []domain.ProxyNode{node("A")},
	}
	cfg, err := Merge(base, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if cfg.MixedPort != 7890 || cfg.AllowLAN || cfg.Mode != "global" || cfg.ExternalController != "127.0.0.1:9090" {
		t.Fatalf("expected forced control settings, got %+v", cfg)
	}
	if cfg.Secret != "s3cret" {
		t.Fatalf("expected secret preserved, got %q", cfg.Secret)
	}
	if !reflect.DeepEqual(cfg.Rules, []string{"MATCH,GLOBAL"}) {
		t.Fatalf("expected default rules, got %v", cfg.Rules)
	}
}

func TestMerge_KeepsExistingRules(t *testing.T) {
	t.Parallel()

	base := &domain.SubscriptionConfig{Proxies: []domain.ProxyNode{node("A")}, Rules: []string{"DOMAIN,x.com,DIRECT", "MATCH,Proxy"}}
	cfg, err := Merge(base, nil, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(cfg.Rules) != 2 {
		t.Fatalf("expected source rules kept, got %v", cfg.Rules)
	}
}

func TestMerge_NoNodes(t *testing.T) {
	t.Parallel()

	if _, err := Merge(nil, nil, Options{}); !errors.Is(err, ErrNoUsableNodes) {
		t.Fatalf("expected ErrNoUsableNodes, got %v", err)
	}
	if _, err := Merge(&domain.SubscriptionConfig{}, nil, Options{}); !errors.Is(err, ErrNoUsableNodes) {
		t.Fatalf("expected ErrNoUsableNodes for empty structured config, got %v", err)
	}
}

func TestMerge_URIOnlyBuildsFromScratch(t *testing.T) {
	t.Parallel()

	cfg, err := Merge(nil, []domain.ProxyNode{node("H1")}, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(cfg.ProxyGroups) != 1 || cfg.ProxyGroups[0].Name != "GLOBAL" {
		t.Fatalf("expected only GLOBAL group, got %+v", cfg.ProxyGroups)
	}
	if !reflect.DeepEqual(cfg.ProxyGroups[0].Proxies, []string{"H1", "DIRECT"}) {
		t.Fatalf("unexpected GLOBAL members %v", cfg.ProxyGroups[0].Proxies)
	}
}

func TestEnsureGlobalGroup_CoercesExistingInPlace(t *testing.T) {
	t.Parallel()

	cfg := &domain.SubscriptionConfig{
		Proxies: []domain.ProxyNode{node("A"), node("B")},
		ProxyGroups: []domain.ProxyGroup{
			{Name: "Proxy", Type: "select", Proxies: []string{"A"}},
			{Name: "GLOBAL", Type: "url-test", Proxies: []string{"Proxy"}},
		},
	}
	EnsureGlobalGroup(cfg)

	if len(cfg.ProxyGroups) != 2 || cfg.ProxyGroups[1].Name != "GLOBAL" {
		t.Fatalf("expected GLOBAL to stay in place, got %+v", cfg.ProxyGroups)
	}
	global := cfg.ProxyGroups[1]
	if global.Type != "select" || !reflect.DeepEqual(global.Proxies, []string{"A", "B", "DIRECT"}) {
		t.Fatalf("expected coerced GLOBAL, got %+v", global)
	}
}

func TestEnsureGlobalGroup_InsertsFirst(t *testing.T) {
	t.Parallel()

	cfg := &domain.SubscriptionConfig{
		Proxies:     []domain.ProxyNode{node("A")},
		ProxyGroups: []domain.ProxyGroup{{Name: "Proxy", Type: "select", Proxies: []string{"A"}}},
	}
	EnsureGlobalGroup(cfg)
	if cfg.ProxyGroups[0].Name != "GLOBAL" || cfg.ProxyGroups[1].Name != "Proxy" {
		t.Fatalf("expected GLOBAL inserted first, got %+v", cfg.ProxyGroups)
	}
}

func TestUniqueName(t *testing.T) {
	t.Parallel()

	used := map[string]struct{}{"A": {}, "A-2": {}, "Unnamed": {}}
	if got := UniqueName("A", used); got != "A-3" {
		t.Fatalf("expected A-3, got %q", got)
	}
	if got := UniqueName("", used); got != "Unnamed-2" {
		t.Fatalf("expected Unnamed-2, got %q", got)
	}
	if got := UniqueName("Z", used); got != "Z" {
		t.Fatalf("expected Z, got %q", got)
	}
}

func TestMerge_NormalizesFingerprints(t *testing.T) {
	t.Parallel()

	hex := strings.Repeat("c0", 32)
	a := node("A")
	a.Fields.Set("fingerprint", "chrome")
	b := node("B")
	b.Fields.Set("fingerprint", hex)

	cfg, err := Merge(&domain.SubscriptionConfig{Proxies: []domain.ProxyNode{a, b}}, nil, Options{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if cfg.Proxies[0].Fields.Has("fingerprint") || cfg.Proxies[0].Fields.String("client-fingerprint") != "chrome" {
		t.Fatalf("expected chrome moved, got %+v", cfg.Proxies[0].Fields)
	}
	if cfg.Proxies[1].Fields.String("fingerprint") != hex {
		t.Fatalf("expected hex kept, got %+v", cfg.Proxies[1].Fields)
	}
	if !a.Fields.Has("fingerprint") {
		t.Fatalf("expected input node not to be mutated")
	}
}
