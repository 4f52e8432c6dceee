package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"clashsub/backend/api"
	"clashsub/backend/metrics"
	"clashsub/backend/repository/events"
	"clashsub/backend/repository/memory"
	"clashsub/backend/service/applog"
	"clashsub/backend/service/clash"
	"clashsub/backend/service/shared"
	"clashsub/backend/settings"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":19090", "HTTP listen address")
	dataDir := flag.String("data", "data", "data directory for config, pid and logs")
	settingsPath := flag.String("settings", "", "settings file (default <data>/settings.yaml)")
	binary := flag.String("binary", "", "path to mihomo/clash binary (default: search <data>/core and PATH)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	flag.Parse()

	configureLogging(*logLevel)

	appLogPath, appLogStartedAt, closeAppLog := setupAppLogging(*dataDir)
	if closeAppLog != nil {
		defer closeAppLog()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. 事件总线与设置仓储
	eventBus := events.NewBus()
	memStore := memory.NewStore(eventBus)
	settingsRepo := memory.NewSettingsRepo(memStore)

	// 2. 设置文件（环境变量覆盖），变更时热加载
	if *settingsPath == "" {
		*settingsPath = filepath.Join(*dataDir, "settings.yaml")
	}
	source := settings.NewFileSource(*settingsPath, settingsRepo)
	if _, err := source.Reload(ctx); err != nil {
		logrus.Errorf("[Settings] load %s failed: %v", *settingsPath, err)
		return 1
	}
	go func() {
		if err := source.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Warnf("[Settings] watch stopped: %v", err)
		}
	}()

	// 3. 内核二进制
	binaryPath, err := shared.ResolveCoreBinary(*binary, *dataDir)
	if err != nil {
		logrus.Warnf("[Clash] %v; start will fail until a core binary is installed", err)
	} else {
		logrus.Infof("[Clash] using core binary %s", binaryPath)
	}

	// 4. 编排服务
	svc := clash.NewService(clash.Config{
		DataDir:    *dataDir,
		BinaryPath: binaryPath,
		HTTPClient: shared.HTTPClient,
	}, settingsRepo, eventBus)

	// 5. 指标
	collector := metrics.NewCollector(prometheus.NewRegistry())
	collector.Attach(eventBus)

	// 6. 定时更新
	svc.StartAutoUpdate(ctx)

	router := api.NewRouter(api.Deps{
		Clash:    svc,
		Settings: settingsRepo,
		AppLog:   applog.New(appLogPath, appLogStartedAt),
		Metrics:  collector.Handler(),
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		logrus.Infof("收到退出信号，正在清理...")

		if err := svc.Close(); err != nil {
			logrus.Warnf("关闭服务失败: %v", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("graceful shutdown failed: %v", err)
		}
		close(cleanupDone)
	}()

	logrus.Infof("server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Errorf("listen: %v", err)
		cancel()
		<-cleanupDone
		return 1
	}
	<-cleanupDone
	return 0
}

func configureLogging(flagLevel string) {
	raw := strings.TrimSpace(flagLevel)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	level := logrus.InfoLevel
	if raw != "" {
		parsed, err := logrus.ParseLevel(raw)
		if err != nil {
			logrus.Warnf("invalid log level %q, using info", raw)
		} else {
			level = parsed
		}
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if level >= logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func setupAppLogging(dataDir string) (path string, startedAt time.Time, closeFn func()) {
	startedAt = time.Now()
	path = filepath.Join(dataDir, "app.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logrus.Warnf("[AppLog] create log dir failed: %v", err)
		return "", time.Time{}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		logrus.Warnf("[AppLog] open log file failed (%s): %v", path, err)
		return "", time.Time{}, nil
	}

	_, _ = fmt.Fprintf(f, "----- app start %s pid=%d -----\n", startedAt.Format(time.RFC3339Nano), os.Getpid())
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	logrus.Infof("[AppLog] writing to %s", path)
	return path, startedAt, func() { _ = f.Close() }
}
