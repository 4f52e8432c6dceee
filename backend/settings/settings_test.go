package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"clashsub/backend/repository"
	"clashsub/backend/repository/memory"
)

func TestLoadFile_ScalarsAsStrings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "clash_subscription_url: https://example.com/sub\nclash_update_interval: 3600\nclash_enabled: true\nclash_proxy_node: ~\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := map[string]string{
		"clash_subscription_url": "https://example.com/sub",
		"clash_update_interval":  "3600",
		"clash_enabled":          "true",
	}
	if !reflect.DeepEqual(values, want) {
		t.Fatalf("expected %v, got %v", want, values)
	}
}

func TestLoadFile_MissingAndInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	values, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	if err != nil || len(values) != 0 {
		t.Fatalf("expected empty values for missing file, got %v, %v", values, err)
	}

	path := filepath.Join(dir, "nested.yaml")
	if err := os.WriteFile(path, []byte("clash_enabled:\n  - true\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); !errors.Is(err, repository.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestApplyEnv_OverridesKnownKeys(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CLASHSUB_CLASH_ENABLED": "false",
		"CLASHSUB_UNKNOWN":       "x",
	}
	values := map[string]string{"clash_enabled": "true"}
	ApplyEnv(values, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if !reflect.DeepEqual(values, map[string]string{"clash_enabled": "false"}) {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestFileSource_WatchReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("clash_enabled: false\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	repo := memory.NewSettingsRepo(memory.NewStore(nil))
	src := NewFileSource(path, repo)
	src.lookup = func(string) (string, bool) { return "", false }
	src.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := src.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if repository.GetBool(ctx, repo, repository.SettingEnabled, true) {
		t.Fatalf("expected initial value false")
	}

	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		// 重复写入直到监听生效
		if err := os.WriteFile(path, []byte("clash_enabled: true\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		if repository.GetBool(ctx, repo, repository.SettingEnabled, false) {
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		}
	}
	t.Fatalf("expected settings to reload after file change")
}
