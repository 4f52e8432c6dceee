package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"clashsub/backend/domain"
	"clashsub/backend/persist"
)

// ErrNotRunning 内核未运行。
var ErrNotRunning = errors.New("proxy core is not running")

// FallbackGroupNames 常见订阅里的主选择组名，按顺序兜底尝试。
var FallbackGroupNames = []string{
	domain.GlobalGroupName,
	"Proxy",
	"节点选择",
	"🚀 节点选择",
	"✈️ 节点选择",
	"🔰 节点选择",
}

// SelectionError 所有候选组都切换失败。
type SelectionError struct {
	Node    string
	LastErr error
}

func (e *SelectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.LastErr == nil {
		return fmt.Sprintf("select %s: no group accepted the node", e.Node)
	}
	return fmt.Sprintf("select %s: %v", e.Node, e.LastErr)
}

func (e *SelectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.LastErr
}

// Controller 面向编排层的控制面：存活探测、重载、节点列表与带兜底的节点切换。
type Controller struct {
	client     *Client
	configPath string

	mu      sync.Mutex
	nodes   []domain.ProxyNode
	current string
}

// NewController 创建控制器。secret 每次请求时从已写入的配置文件读取。
func NewController(baseURL, configPath string, httpClient *http.Client) *Controller {
	c := &Controller{configPath: configPath}
	c.client = NewClient(baseURL, httpClient, c.readSecret)
	return c
}

// Client 底层客户端。
func (c *Controller) Client() *Client { return c.client }

func (c *Controller) readSecret() string {
	cfg, err := persist.ReadConfig(c.configPath)
	if err != nil {
		return ""
	}
	return cfg.Secret
}

// IsRunning 控制接口可达即视为运行中；任何错误都返回 false。
func (c *Controller) IsRunning(ctx context.Context) bool {
	_, err := c.client.Version(ctx)
	if err != nil {
		logrus.Debugf("[Controller] liveness probe failed: %v", err)
		return false
	}
	return true
}

// Reload 让内核重新加载配置文件（绝对路径）。
func (c *Controller) Reload(ctx context.Context) bool {
	path, err := filepath.Abs(c.configPath)
	if err != nil {
		path = c.configPath
	}
	if err := c.client.ReloadConfig(ctx, path); err != nil {
		logrus.Warnf("[Controller] reload %s failed: %v", path, err)
		return false
	}
	return true
}

// ListNodes 优先读取已写入的配置文件，失败时回退到内存缓存。
func (c *Controller) ListNodes() []domain.NodeInfo {
	var nodes []domain.ProxyNode
	if cfg, err := persist.ReadConfig(c.configPath); err == nil {
		nodes = cfg.Proxies
		c.mu.Lock()
		c.nodes = cloneNodes(nodes)
		c.mu.Unlock()
	} else {
		if !errors.Is(err, persist.ErrConfigNotFound) {
			logrus.Warnf("[Controller] read config failed, using cache: %v", err)
		}
		c.mu.Lock()
		nodes = cloneNodes(c.nodes)
		c.mu.Unlock()
	}

	out := make([]domain.NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, domain.NodeInfoFor(n))
	}
	return out
}

// InvalidateCache 丢弃节点缓存。
func (c *Controller) InvalidateCache() {
	c.mu.Lock()
	c.nodes = nil
	c.mu.Unlock()
}

// CachedSelection 最近一次已知的选中节点。
func (c *Controller) CachedSelection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetCachedSelection 覆盖缓存的选中节点（例如从状态文件恢复）。
func (c *Controller) SetCachedSelection(name string) {
	c.mu.Lock()
	c.current = name
	c.mu.Unlock()
}

// SelectNode 依次尝试候选组，返回接受该节点的组名。
//
// 候选顺序：包含该节点的 Selector，包含该节点的其他组，其余 Selector，常见组名。
// 400/404 表示该组不接受此节点；其余失败记为最后错误，继续下一个。
func (c *Controller) SelectNode(ctx context.Context, name string) (string, error) {
	if !c.IsRunning(ctx) {
		return "", ErrNotRunning
	}

	var lastErr error
	proxies, err := c.client.Proxies(ctx)
	if err != nil {
		logrus.Warnf("[Controller] list groups failed: %v", err)
		lastErr = err
	}

	for _, group := range candidateGroups(proxies, name) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := c.client.SelectProxy(ctx, group, name)
		if err == nil {
			c.SetCachedSelection(name)
			logrus.Infof("[Controller] selected %s in group %s", name, group)
			return group, nil
		}
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusNotFound) {
			lastErr = fmt.Errorf("切换失败(%d): %s", se.Code, group)
			continue
		}
		logrus.Debugf("[Controller] select %s in %s failed: %v", name, group, err)
		lastErr = err
	}
	return "", &SelectionError{Node: name, LastErr: lastErr}
}

// CurrentSelection GLOBAL 的 now，否则按名称排序的第一个有 now 的 Selector，否则缓存。
func (c *Controller) CurrentSelection(ctx context.Context) string {
	global, err := c.client.Proxy(ctx, domain.GlobalGroupName)
	if err == nil && global.Now != "" {
		c.SetCachedSelection(global.Now)
		return global.Now
	}
	var se *StatusError
	if err != nil && !errors.As(err, &se) {
		logrus.Debugf("[Controller] current selection from cache: %v", err)
		return c.CachedSelection()
	}

	proxies, err := c.client.Proxies(ctx)
	if err != nil {
		logrus.Debugf("[Controller] current selection from cache: %v", err)
		return c.CachedSelection()
	}
	if g, ok := proxies[domain.GlobalGroupName]; ok && g.Now != "" {
		c.SetCachedSelection(g.Now)
		return g.Now
	}
	for _, name := range sortedNames(proxies) {
		g := proxies[name]
		if g.Type == TypeSelector && g.Now != "" {
			c.SetCachedSelection(g.Now)
			return g.Now
		}
	}
	return c.CachedSelection()
}

func candidateGroups(proxies map[string]ProxyInfo, node string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	names := sortedNames(proxies)
	var memberSelectors, memberOthers, selectors []string
	for _, name := range names {
		info := proxies[name]
		isSelector := info.Type == TypeSelector
		if contains(info.All, node) {
			if isSelector {
				memberSelectors = append(memberSelectors, name)
			} else {
				memberOthers = append(memberOthers, name)
			}
			continue
		}
		if isSelector {
			selectors = append(selectors, name)
		}
	}
	for _, list := range [][]string{memberSelectors, memberOthers, selectors, FallbackGroupNames} {
		for _, name := range list {
			add(name)
		}
	}
	return out
}

func sortedNames(proxies map[string]ProxyInfo) []string {
	names := make([]string, 0, len(proxies))
	for name := range proxies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneNodes(nodes []domain.ProxyNode) []domain.ProxyNode {
	if nodes == nil {
		return nil
	}
	out := make([]domain.ProxyNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
