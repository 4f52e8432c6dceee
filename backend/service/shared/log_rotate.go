package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OpenProcessLog 以追加方式打开内核日志。
//
// 文件超过 maxSize 时先改名为带时间戳的归档（/path/clash.log -> /path/clash-20260116-235959.log），
// 并清理早于 retain 的归档。maxSize<=0 表示不按大小轮转。
func OpenProcessLog(path string, maxSize int64, retain time.Duration) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if maxSize > 0 {
		if st, err := os.Stat(path); err == nil && st.Size() >= maxSize {
			if err := rotate(path); err != nil {
				return nil, err
			}
		}
	}
	if retain > 0 {
		pruneRotated(path, retain)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func rotate(path string) error {
	dir, stem, ext := splitLogPath(path)
	ts := time.Now().Format("20060102-150405")
	rotated := filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, ts, ext))
	for i := 1; ; i++ {
		if _, err := os.Stat(rotated); err == nil {
			rotated = filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, ts, i, ext))
			continue
		} else if !os.IsNotExist(err) {
			return err
		}
		break
	}
	return os.Rename(path, rotated)
}

func pruneRotated(path string, retain time.Duration) {
	dir, stem, ext := splitLogPath(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-retain)
	prefix := stem + "-"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || (ext != "" && !strings.HasSuffix(name, ext)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

func splitLogPath(path string) (dir, stem, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, ext
}
