package subscription

import (
	"strings"
	"sync"

	"clashsub/backend/domain"
)

// SchemeParser 解析一条分享链接。
//
// matched=false 表示链接不属于该解析器；matched=true 且 err!=nil 表示格式错误。
type SchemeParser func(link string) (node domain.ProxyNode, matched bool, err error)

var (
	registryMu sync.RWMutex
	registry   = map[string]SchemeParser{}
)

func init() {
	RegisterScheme(parseHysteria2, "hysteria2", "hy2")
	RegisterScheme(parseShadowsocks, "ss")
	RegisterScheme(parseTrojan, "trojan")
	RegisterScheme(parseVLESS, "vless")
	RegisterScheme(parseVMess, "vmess")
}

// RegisterScheme 为一个或多个协议名注册解析器，后注册的覆盖先注册的。
func RegisterScheme(parser SchemeParser, schemes ...string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, scheme := range schemes {
		scheme = strings.ToLower(strings.TrimSpace(scheme))
		if scheme == "" {
			continue
		}
		registry[scheme] = parser
	}
}

func lookupScheme(link string) (SchemeParser, bool) {
	idx := strings.Index(link, "://")
	if idx <= 0 {
		return nil, false
	}
	scheme := strings.ToLower(link[:idx])
	registryMu.RLock()
	defer registryMu.RUnlock()
	parser, ok := registry[scheme]
	return parser, ok
}

// ParseShareLink 按协议分发解析单条链接。
func ParseShareLink(link string) (domain.ProxyNode, error) {
	link = strings.TrimSpace(link)
	parser, ok := lookupScheme(link)
	if !ok {
		return domain.ProxyNode{}, ErrUnsupportedScheme
	}
	node, matched, err := parser(link)
	if !matched {
		return domain.ProxyNode{}, ErrUnsupportedScheme
	}
	if err != nil {
		return domain.ProxyNode{}, err
	}
	return node, nil
}
