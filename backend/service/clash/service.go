package clash

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clashsub/backend/domain"
	"clashsub/backend/persist"
	"clashsub/backend/repository"
	"clashsub/backend/repository/events"
	"clashsub/backend/service/controlplane"
	"clashsub/backend/service/fetch"
	"clashsub/backend/service/normalize"
	"clashsub/backend/service/process"
	"clashsub/backend/service/shared"
	"clashsub/backend/tasks"
)

// Config 编排层参数。零值字段使用默认。
type Config struct {
	// DataDir 数据根目录；配置、PID 与日志位于 <DataDir>/clash。
	DataDir    string
	BinaryPath string

	// ControllerURL 控制接口地址，默认由 Normalize.ExternalController 推出。
	ControllerURL string

	Normalize normalize.Options
	Fetch     fetch.Options
	Process   process.Config

	// HTTPClient 订阅下载客户端；ControlClient 控制接口客户端。
	HTTPClient    *http.Client
	ControlClient *http.Client

	AutoUpdateBackoff time.Duration
}

// Service 订阅更新与内核控制的编排入口。
type Service struct {
	settings repository.SettingsSource
	bus      *events.Bus

	fetcher *fetch.Fetcher
	control *controlplane.Controller
	proc    *process.Manager
	state   *persist.StateStore
	sched   *tasks.Scheduler

	configDir  string
	configPath string
	normalize  normalize.Options
	backoff    time.Duration

	mu         sync.Mutex
	lastUpdate *time.Time
}

// NewService 创建编排服务并恢复上次的运行状态。bus 可为 nil。
func NewService(cfg Config, settings repository.SettingsSource, bus *events.Bus) *Service {
	configDir := filepath.Join(cfg.DataDir, "clash")
	configPath := filepath.Join(configDir, shared.ConfigFileName)

	normOpts := cfg.Normalize
	if normOpts.ExternalController == "" {
		normOpts.ExternalController = shared.DefaultExternalController
	}
	controllerURL := cfg.ControllerURL
	if controllerURL == "" {
		controllerURL = "http://" + normOpts.ExternalController
	}
	controlClient := cfg.ControlClient
	if controlClient == nil {
		controlClient = shared.HTTPClientDirect
	}
	backoff := cfg.AutoUpdateBackoff
	if backoff <= 0 {
		backoff = shared.UpdateFailureBackoff
	}

	s := &Service{
		settings:   settings,
		bus:        bus,
		fetcher:    fetch.New(cfg.HTTPClient, cfg.Fetch),
		control:    controlplane.NewController(controllerURL, configPath, controlClient),
		state:      persist.NewStateStore(filepath.Join(configDir, shared.StateFileName)),
		sched:      tasks.NewScheduler(),
		configDir:  configDir,
		configPath: configPath,
		normalize:  normOpts,
		backoff:    backoff,
	}

	procCfg := cfg.Process
	procCfg.BinaryPath = cfg.BinaryPath
	procCfg.ConfigDir = configDir
	s.proc = process.NewManager(procCfg, s.control)
	s.proc.Updater = func(ctx context.Context) error {
		_, err := s.update(ctx)
		return err
	}
	s.proc.OnReady = s.selectDefaultNode

	s.restoreState()
	return s
}

// ConfigPath 持久化配置路径。
func (s *Service) ConfigPath() string { return s.configPath }

// ConfigDir 内核工作目录。
func (s *Service) ConfigDir() string { return s.configDir }

func (s *Service) restoreState() {
	st, err := s.state.Load()
	if err != nil {
		logrus.Warnf("[Clash] load state failed: %v", err)
		return
	}
	s.mu.Lock()
	s.lastUpdate = st.LastUpdate
	s.mu.Unlock()
	if st.CurrentProxy != "" {
		s.control.SetCachedSelection(st.CurrentProxy)
	}
}

func (s *Service) saveState() {
	s.mu.Lock()
	st := persist.State{LastUpdate: s.lastUpdate, CurrentProxy: s.control.CachedSelection()}
	s.mu.Unlock()
	if err := s.state.Save(st); err != nil {
		logrus.Warnf("[Clash] save state failed: %v", err)
	}
}

func (s *Service) publish(event events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

// UpdateSubscription 拉取订阅 → 合并规范化 → 写入配置 → 运行中则重载。
func (s *Service) UpdateSubscription(ctx context.Context) domain.UpdateResult {
	res, err := s.update(ctx)
	if err != nil {
		return domain.UpdateResult{Success: false, Error: err.Error()}
	}
	return res
}

func (s *Service) update(ctx context.Context) (domain.UpdateResult, error) {
	started := time.Now()
	res, err := s.doUpdate(ctx)
	ev := events.SubscriptionEvent{
		EventType:  events.EventSubscriptionUpdated,
		Format:     res.Format,
		ProxyCount: res.ProxyCount,
		Duration:   time.Since(started),
		Err:        err,
	}
	if err != nil {
		ev.EventType = events.EventSubscriptionFailed
		logrus.Errorf("[Clash] update subscription failed: %v", err)
	}
	s.publish(ev)
	return res, err
}

func (s *Service) doUpdate(ctx context.Context) (domain.UpdateResult, error) {
	url := repository.GetString(ctx, s.settings, repository.SettingSubscriptionURL, "")
	if url == "" {
		return domain.UpdateResult{}, repository.ErrSubscriptionURLMissing
	}

	fetched, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	format := string(fetched.Format)

	cfg, err := normalize.Merge(fetched.Config, fetched.Nodes, s.normalize)
	if err != nil {
		return domain.UpdateResult{Format: format}, err
	}
	if err := persist.WriteConfig(s.configPath, cfg); err != nil {
		return domain.UpdateResult{Format: format}, err
	}
	logrus.Infof("[Clash] wrote %d proxies to %s", len(cfg.Proxies), s.configPath)

	now := time.Now()
	s.mu.Lock()
	s.lastUpdate = &now
	s.mu.Unlock()
	s.control.InvalidateCache()
	s.saveState()

	if s.control.IsRunning(ctx) {
		if s.control.Reload(ctx) {
			logrus.Infof("[Clash] running core reloaded")
		} else {
			logrus.Warnf("[Clash] config written but reload failed")
		}
	}

	return domain.UpdateResult{Success: true, ProxyCount: len(cfg.Proxies), Format: format}, nil
}

// Start 已运行时直接返回成功；否则先更新订阅再拉起内核。
func (s *Service) Start(ctx context.Context) domain.ActionResult {
	spawned, err := s.proc.Start(ctx)
	if err != nil {
		logrus.Errorf("[Clash] start failed: %v", err)
		s.publish(events.ProcessEvent{EventType: events.EventProcessStarted, Err: err})
		return domain.ActionResult{Success: false, Message: err.Error()}
	}
	if !spawned {
		return domain.ActionResult{Success: true, Message: "already running"}
	}
	s.publish(events.ProcessEvent{EventType: events.EventProcessStarted})
	return domain.ActionResult{Success: true, Message: "started"}
}

// Stop 停止内核。
func (s *Service) Stop(ctx context.Context) domain.ActionResult {
	if err := s.proc.Stop(ctx); err != nil {
		logrus.Errorf("[Clash] stop failed: %v", err)
		s.publish(events.ProcessEvent{EventType: events.EventProcessStopped, Err: err})
		return domain.ActionResult{Success: false, Message: err.Error()}
	}
	s.publish(events.ProcessEvent{EventType: events.EventProcessStopped})
	return domain.ActionResult{Success: true, Message: "stopped"}
}

// SelectProxy 切换到指定节点。
func (s *Service) SelectProxy(ctx context.Context, name string) domain.SelectResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.SelectResult{Success: false, Error: "node name is empty"}
	}
	group, err := s.control.SelectNode(ctx, name)
	s.publish(events.SelectionEvent{EventType: events.EventProxySelected, Node: name, Group: group, Err: err})
	if err != nil {
		logrus.Warnf("[Clash] select %s failed: %v", name, err)
		return domain.SelectResult{Success: false, Node: name, Error: err.Error()}
	}
	s.saveState()
	return domain.SelectResult{Success: true, Node: name, Group: group}
}

func (s *Service) selectDefaultNode(ctx context.Context) {
	name := repository.GetString(ctx, s.settings, repository.SettingProxyNode, "")
	if name == "" {
		return
	}
	if res := s.SelectProxy(ctx, name); !res.Success {
		logrus.Warnf("[Clash] default node %s not applied: %s", name, res.Error)
	}
}

// CurrentProxy 当前选中的节点名，内核不可达时返回缓存。
func (s *Service) CurrentProxy(ctx context.Context) string {
	return s.control.CurrentSelection(ctx)
}

// ListNodes 节点列表，标记缓存中的当前节点。
func (s *Service) ListNodes(ctx context.Context) []domain.NodeInfo {
	nodes := s.control.ListNodes()
	current := s.control.CachedSelection()
	for i := range nodes {
		nodes[i].Current = current != "" && nodes[i].Name == current
	}
	return nodes
}

// Logs 内核输出日志，从 since 偏移处增量读取。
func (s *Service) Logs(since int64) process.LogChunk {
	return s.proc.LogsSince(since)
}

// Status 运行状态。
func (s *Service) Status(ctx context.Context) domain.Status {
	running := s.control.IsRunning(ctx)
	current := s.control.CachedSelection()
	if running {
		current = s.control.CurrentSelection(ctx)
	}
	s.mu.Lock()
	var last *time.Time
	if s.lastUpdate != nil {
		t := *s.lastUpdate
		last = &t
	}
	s.mu.Unlock()

	return domain.Status{
		Running:      running,
		CurrentProxy: current,
		LastUpdate:   last,
		ConfigExists: persist.ConfigExists(s.configPath),
	}
}

// StartAutoUpdate 启动定时更新循环；已在运行时返回 false。
func (s *Service) StartAutoUpdate(ctx context.Context) bool {
	return s.sched.Start(ctx, tasks.Job{
		Name:    "subscription auto-update",
		Next:    s.nextUpdateDelay,
		Run:     s.autoUpdateOnce,
		Backoff: s.backoff,
	})
}

// StopAutoUpdate 停止定时更新循环并等待其退出。
func (s *Service) StopAutoUpdate() {
	s.sched.Stop()
}

// AutoUpdateRunning 定时更新循环是否在运行。
func (s *Service) AutoUpdateRunning() bool {
	return s.sched.Running()
}

func (s *Service) nextUpdateDelay(now time.Time) time.Duration {
	ctx := context.Background()
	interval := repository.GetSeconds(ctx, s.settings, repository.SettingUpdateInterval, shared.DefaultUpdateInterval)
	spec := repository.GetString(ctx, s.settings, repository.SettingUpdateCron, "")
	return tasks.NextDelay(spec, interval, now)
}

func (s *Service) autoUpdateOnce(ctx context.Context) error {
	if !repository.GetBool(ctx, s.settings, repository.SettingEnabled, false) {
		logrus.Debugf("[Clash] auto-update skipped: %s is off", repository.SettingEnabled)
		return nil
	}
	res, err := s.update(ctx)
	if err != nil {
		return err
	}
	logrus.Infof("[Clash] auto-update wrote %d proxies", res.ProxyCount)
	return nil
}

// Close 停止后台循环。
func (s *Service) Close() error {
	s.StopAutoUpdate()
	return nil
}
