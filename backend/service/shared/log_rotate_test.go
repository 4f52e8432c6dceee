package shared

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenProcessLog_AppendsBelowLimit(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "clash.log")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	f, err := OpenProcessLog(path, 1<<20, 0)
	if err != nil {
		t.Fatalf("OpenProcessLog: %v", err)
	}
	_, _ = f.WriteString("second\n")
	_ = f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Fatalf("expected appended content, got %q", data)
	}
}

func TestOpenProcessLog_RotatesOversizedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "clash.log")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}

	f, err := OpenProcessLog(path, 5, 0)
	if err != nil {
		t.Fatalf("OpenProcessLog: %v", err)
	}
	_ = f.Close()

	if st, err := os.Stat(path); err != nil || st.Size() != 0 {
		t.Fatalf("expected fresh empty log, got %v err=%v", st, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "clash-") && strings.HasSuffix(e.Name(), ".log") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rotated clash-*.log to be created")
	}
}

func TestOpenProcessLog_PrunesOldRotatedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "clash.log")

	old := filepath.Join(dir, "clash-20000101-000000.log")
	if err := os.WriteFile(old, []byte("old"), 0o600); err != nil {
		t.Fatalf("write old rotated: %v", err)
	}
	oldTime := time.Now().Add(-8 * 24 * time.Hour)
	if err := os.Chtimes(old, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes old rotated: %v", err)
	}
	keep := filepath.Join(dir, "clash-29990101-000000.log")
	if err := os.WriteFile(keep, []byte("keep"), 0o600); err != nil {
		t.Fatalf("write keep rotated: %v", err)
	}

	f, err := OpenProcessLog(path, 0, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("OpenProcessLog: %v", err)
	}
	_ = f.Close()

	if _, err := os.Stat(old); err == nil {
		t.Fatalf("expected old rotated log to be pruned")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("expected recent rotated log to remain, err=%v", err)
	}
}
