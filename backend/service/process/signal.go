package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// terminatePID 请求进程退出：Windows 下 taskkill，其余平台 SIGTERM。
func terminatePID(pid int) error {
	if runtime.GOOS == "windows" {
		return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}

// killPID 强制结束进程。
func killPID(pid int) error {
	if runtime.GOOS == "windows" {
		return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGKILL)
}

// killByPattern 没有 PID 可用时按命令行匹配结束进程；Windows 下按映像名。
func killByPattern(pattern, binaryPath string) error {
	pattern = strings.TrimSpace(pattern)
	if runtime.GOOS == "windows" {
		image := filepath.Base(binaryPath)
		if image == "" || image == "." {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(image), ".exe") {
			image += ".exe"
		}
		return exec.Command("taskkill", "/F", "/IM", image).Run()
	}
	if pattern == "" {
		return nil
	}
	pkillPath, err := exec.LookPath("pkill")
	if err != nil {
		return err
	}
	return exec.Command(pkillPath, "-f", pattern).Run()
}
