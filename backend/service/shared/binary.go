package shared

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// CoreBinaryNames 内核可执行文件的候选名称
var CoreBinaryNames = []string{"mihomo", "clash", "clash-meta"}

func coreCandidates() []string {
	out := make([]string, 0, len(CoreBinaryNames)*2)
	for _, name := range CoreBinaryNames {
		if runtime.GOOS == "windows" {
			out = append(out, name+".exe")
		}
		out = append(out, name)
	}
	return out
}

// FindBinaryInDir 在目录中查找二进制文件（支持子目录 1 层）
func FindBinaryInDir(dir string, candidates []string) (string, error) {
	if dir == "" {
		return "", errors.New("install dir is empty")
	}
	if len(candidates) == 0 {
		return "", errors.New("binary candidates are empty")
	}

	// 先在根目录查找
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}

	// 在子目录中查找（深度 1 层）
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("binary not found in %s (candidates: %v): %w", dir, candidates, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subdir := filepath.Join(dir, entry.Name())
		for _, name := range candidates {
			path := filepath.Join(subdir, name)
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("binary not found in %s (candidates: %v)", dir, candidates)
}

// ResolveCoreBinary 确定内核路径：显式指定优先，其次 <dataDir>/core，最后 PATH。
func ResolveCoreBinary(explicit, dataDir string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		if p, err := exec.LookPath(explicit); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("core binary %s not found", explicit)
	}

	if dataDir != "" {
		if p, err := FindBinaryInDir(filepath.Join(dataDir, "core"), coreCandidates()); err == nil {
			return p, nil
		}
	}
	for _, name := range CoreBinaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("core binary not found (candidates: %v)", CoreBinaryNames)
}
