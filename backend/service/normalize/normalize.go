package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"clashsub/backend/domain"
	"clashsub/backend/service/shared"
)

// ErrNoUsableNodes 结构化配置与分享链接都没有提供节点。
var ErrNoUsableNodes = errors.New("subscription contains no usable proxy nodes")

// Options 强制写入的控制面参数。
type Options struct {
	MixedPort          int
	ExternalController string
	Mode               string
}

// DefaultOptions 默认控制面参数。
func DefaultOptions() Options {
	return Options{
		MixedPort:          shared.DefaultMixedPort,
		ExternalController: shared.DefaultExternalController,
		Mode:               shared.DefaultMode,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MixedPort <= 0 {
		o.MixedPort = def.MixedPort
	}
	if strings.TrimSpace(o.ExternalController) == "" {
		o.ExternalController = def.ExternalController
	}
	if strings.TrimSpace(o.Mode) == "" {
		o.Mode = def.Mode
	}
	return o
}

// Merge 以结构化配置为底（可为 nil），追加分享链接节点，生成新的规范化配置。输入不会被修改。
func Merge(base *domain.SubscriptionConfig, uriNodes []domain.ProxyNode, opts Options) (*domain.SubscriptionConfig, error) {
	opts = opts.withDefaults()

	baseCount := 0
	if base != nil {
		baseCount = len(base.Proxies)
	}
	if baseCount == 0 && len(uriNodes) == 0 {
		return nil, ErrNoUsableNodes
	}

	cfg := &domain.SubscriptionConfig{}
	if base != nil {
		cfg.Secret = base.Secret
		cfg.Rules = append([]string(nil), base.Rules...)
		cfg.Extra = base.Extra.Clone()
		cfg.KeyOrder = append([]string(nil), base.KeyOrder...)
		for _, g := range base.ProxyGroups {
			g.Proxies = append([]string(nil), g.Proxies...)
			g.Extra = g.Extra.Clone()
			cfg.ProxyGroups = append(cfg.ProxyGroups, g)
		}
	}

	used := make(map[string]struct{}, baseCount+len(uriNodes))
	add := func(node domain.ProxyNode) {
		node = node.Clone()
		if _, taken := used[node.Name]; taken {
			renamed := UniqueName(node.Name, used)
			logrus.Debugf("[Normalize] duplicate node name %q renamed to %q", node.Name, renamed)
			node.Name = renamed
		}
		used[node.Name] = struct{}{}
		NormalizeFields(&node)
		cfg.Proxies = append(cfg.Proxies, node)
	}
	if base != nil {
		for _, node := range base.Proxies {
			add(node)
		}
	}
	for _, node := range uriNodes {
		add(node)
	}

	cfg.MixedPort = opts.MixedPort
	cfg.AllowLAN = false
	cfg.ExternalController = opts.ExternalController
	cfg.Mode = opts.Mode
	EnsureGlobalGroup(cfg)
	if len(cfg.Rules) == 0 {
		cfg.Rules = []string{shared.DefaultRule}
	}
	return cfg, nil
}

// UniqueName 为重名节点生成 name-2 … name-999，仍冲突时退化为时间戳后缀。
func UniqueName(name string, used map[string]struct{}) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = "Unnamed"
	}
	if _, taken := used[base]; !taken {
		return base
	}
	for i := 2; i < 1000; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
	return fmt.Sprintf("%s-%d", base, time.Now().UnixNano())
}

// NormalizeFields 修正单个节点的字段。
func NormalizeFields(node *domain.ProxyNode) {
	node.NormalizeFingerprint()
}

// EnsureGlobalGroup GLOBAL 组固定为 select，成员为全部节点加 DIRECT。已存在时原位覆盖，否则插到最前。
func EnsureGlobalGroup(cfg *domain.SubscriptionConfig) {
	members := append(cfg.ProxyNames(), domain.DirectProxyName)
	for i := range cfg.ProxyGroups {
		if cfg.ProxyGroups[i].Name == domain.GlobalGroupName {
			cfg.ProxyGroups[i].Type = domain.GroupSelect
			cfg.ProxyGroups[i].Proxies = members
			return
		}
	}
	global := domain.ProxyGroup{Name: domain.GlobalGroupName, Type: domain.GroupSelect, Proxies: members}
	cfg.ProxyGroups = append([]domain.ProxyGroup{global}, cfg.ProxyGroups...)
}
