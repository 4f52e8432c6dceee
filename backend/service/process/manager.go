package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clashsub/backend/service/shared"
)

var (
	// ErrStartTimeout 进程已拉起，但控制接口在轮询期内未就绪。
	ErrStartTimeout = errors.New("proxy core did not become ready in time")
	// ErrStopFailed 强制结束后进程仍在运行。
	ErrStopFailed = errors.New("proxy core is still running after kill")
)

// 默认轮询参数
const (
	DefaultStartAttempts = 10
	DefaultStartInterval = 500 * time.Millisecond
	DefaultStopAttempts  = 10
	DefaultStopInterval  = 300 * time.Millisecond
)

// Liveness 判断内核是否在运行（通常由控制接口探测实现）。
type Liveness interface {
	IsRunning(ctx context.Context) bool
}

// LivenessFunc 函数适配器。
type LivenessFunc func(ctx context.Context) bool

// IsRunning 实现 Liveness。
func (f LivenessFunc) IsRunning(ctx context.Context) bool { return f(ctx) }

// Config 进程管理参数。
type Config struct {
	BinaryPath string
	ConfigDir  string
	PIDFile    string
	LogPath    string
	// Pattern pkill -f 兜底时使用的正则，默认匹配本管理器拉起的完整命令行。
	Pattern string

	StartAttempts int
	StartInterval time.Duration
	StopAttempts  int
	StopInterval  time.Duration

	LogMaxSize   int64
	LogRetention time.Duration
}

// withDefaults 补齐默认值；路径统一转为绝对路径，子进程的工作目录是 ConfigDir。
func (c Config) withDefaults() Config {
	c.ConfigDir = absPath(c.ConfigDir)
	if strings.ContainsRune(c.BinaryPath, filepath.Separator) || strings.ContainsRune(c.BinaryPath, '/') {
		c.BinaryPath = absPath(c.BinaryPath)
	}
	if c.PIDFile == "" {
		c.PIDFile = filepath.Join(c.ConfigDir, shared.PIDFileName)
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.ConfigDir, shared.ProcessLogName)
	}
	c.PIDFile = absPath(c.PIDFile)
	c.LogPath = absPath(c.LogPath)
	if c.Pattern == "" && c.BinaryPath != "" {
		c.Pattern = regexp.QuoteMeta(strings.Join(coreArgs(c.BinaryPath, c.ConfigDir), " "))
	}
	if c.StartAttempts <= 0 {
		c.StartAttempts = DefaultStartAttempts
	}
	if c.StartInterval <= 0 {
		c.StartInterval = DefaultStartInterval
	}
	if c.StopAttempts <= 0 {
		c.StopAttempts = DefaultStopAttempts
	}
	if c.StopInterval <= 0 {
		c.StopInterval = DefaultStopInterval
	}
	if c.LogMaxSize <= 0 {
		c.LogMaxSize = shared.ProcessLogLimit
	}
	if c.LogRetention <= 0 {
		c.LogRetention = shared.LogRetention
	}
	return c
}

// Manager 内核进程生命周期：拉起、分级终止、PID 文件。
type Manager struct {
	cfg  Config
	live Liveness

	// Updater 启动前刷新配置；失败则放弃启动。
	Updater func(ctx context.Context) error
	// OnReady 控制接口就绪后调用。
	OnReady func(ctx context.Context)

	opMu sync.Mutex

	procMu sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
}

// NewManager 创建进程管理器。
func NewManager(cfg Config, live Liveness) *Manager {
	return &Manager{cfg: cfg.withDefaults(), live: live}
}

// PIDFile PID 文件路径。
func (m *Manager) PIDFile() string { return m.cfg.PIDFile }

// LogPath 内核输出日志路径。
func (m *Manager) LogPath() string { return m.cfg.LogPath }

// IsRunning 代理到 Liveness。
func (m *Manager) IsRunning(ctx context.Context) bool {
	return m.live.IsRunning(ctx)
}

// Start 已运行时返回 (false, nil)；否则刷新配置、拉起内核并等待控制接口就绪。
func (m *Manager) Start(ctx context.Context) (bool, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.live.IsRunning(ctx) {
		logrus.Infof("[Process] already running")
		return false, nil
	}

	if m.Updater != nil {
		if err := m.Updater(ctx); err != nil {
			return false, fmt.Errorf("update before start: %w", err)
		}
	}

	if err := m.spawn(); err != nil {
		return false, err
	}

	ready, err := shared.Poll(ctx, m.cfg.StartAttempts, m.cfg.StartInterval, m.live.IsRunning)
	if err != nil {
		return true, err
	}
	if !ready {
		logrus.Warnf("[Process] control API not ready after %d attempts", m.cfg.StartAttempts)
		return true, ErrStartTimeout
	}
	logrus.Infof("[Process] proxy core ready")

	if m.OnReady != nil {
		m.OnReady(ctx)
	}
	return true, nil
}

func (m *Manager) spawn() error {
	if m.cfg.BinaryPath == "" {
		return errors.New("core binary path is empty")
	}
	if err := os.MkdirAll(m.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	logFile, err := shared.OpenProcessLog(m.cfg.LogPath, m.cfg.LogMaxSize, m.cfg.LogRetention)
	if err != nil {
		return fmt.Errorf("open process log: %w", err)
	}
	_, _ = fmt.Fprintf(logFile, "----- kernel start %s binary=%s -----\n", time.Now().Format(time.RFC3339Nano), m.cfg.BinaryPath)

	args := coreArgs(m.cfg.BinaryPath, m.cfg.ConfigDir)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = m.cfg.ConfigDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := WritePID(m.cfg.PIDFile, pid); err != nil {
		logrus.Warnf("[Process] write pid file %s failed: %v", m.cfg.PIDFile, err)
	}
	logrus.Infof("[Process] spawned %s pid=%d", m.cfg.BinaryPath, pid)

	done := make(chan struct{})
	m.procMu.Lock()
	m.cmd = cmd
	m.done = done
	m.procMu.Unlock()

	go m.monitor(cmd, logFile, done)
	return nil
}

func (m *Manager) monitor(cmd *exec.Cmd, logFile *os.File, done chan struct{}) {
	err := cmd.Wait()
	if err != nil {
		logrus.Infof("[Process] pid=%d exited: %v", cmd.Process.Pid, err)
	} else {
		logrus.Infof("[Process] pid=%d exited", cmd.Process.Pid)
	}
	_ = logFile.Close()

	m.procMu.Lock()
	if m.cmd == cmd {
		m.cmd = nil
		m.done = nil
	}
	m.procMu.Unlock()
	close(done)
}

// Stop 分级终止：PID 文件 → 进程句柄 → 按命令行匹配；仍存活则强杀 PID 文件中的进程。
// 确认退出后删除 PID 文件；失败返回 ErrStopFailed 且保留 PID 文件。
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	pid, havePID := ReadPID(m.cfg.PIDFile)

	m.procMu.Lock()
	cmd := m.cmd
	m.procMu.Unlock()

	switch {
	case havePID:
		if err := terminatePID(pid); err != nil {
			logrus.Debugf("[Process] terminate pid=%d: %v (treated as already gone)", pid, err)
		}
	case cmd != nil && cmd.Process != nil:
		if err := terminatePID(cmd.Process.Pid); err != nil {
			logrus.Debugf("[Process] terminate child pid=%d: %v", cmd.Process.Pid, err)
		}
	default:
		if err := killByPattern(m.cfg.Pattern, m.cfg.BinaryPath); err != nil {
			logrus.Debugf("[Process] kill by pattern %q: %v", m.cfg.Pattern, err)
		}
	}

	stopped, err := shared.Poll(ctx, m.cfg.StopAttempts, m.cfg.StopInterval, m.notRunning)
	if err != nil {
		return err
	}

	if !stopped {
		killTarget := 0
		if havePID {
			killTarget = pid
		} else if cmd != nil && cmd.Process != nil {
			killTarget = cmd.Process.Pid
		}
		if killTarget > 0 {
			logrus.Warnf("[Process] pid=%d ignored SIGTERM, killing", killTarget)
			if err := killPID(killTarget); err != nil {
				logrus.Debugf("[Process] kill pid=%d: %v", killTarget, err)
			}
			stopped, err = shared.Poll(ctx, m.cfg.StopAttempts, m.cfg.StopInterval, m.notRunning)
			if err != nil {
				return err
			}
		}
	}

	if !stopped {
		return ErrStopFailed
	}
	if err := RemovePID(m.cfg.PIDFile); err != nil {
		logrus.Warnf("[Process] remove pid file: %v", err)
	}
	logrus.Infof("[Process] proxy core stopped")
	return nil
}

func coreArgs(binary, configDir string) []string {
	return []string{binary, "-d", configDir}
}

func absPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		logrus.Warnf("[Process] resolve %s: %v", path, err)
		return path
	}
	return abs
}

func (m *Manager) notRunning(ctx context.Context) bool {
	return !m.live.IsRunning(ctx)
}

// Done 当前子进程的退出通知；没有子进程时返回 nil。
func (m *Manager) Done() <-chan struct{} {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	return m.done
}
