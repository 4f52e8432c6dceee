package subscription

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"clashsub/backend/domain"
)

// Format 订阅内容的识别结果。
type Format string

const (
	FormatStructured       Format = "structured"
	FormatOpaqueStructured Format = "opaque-structured"
	FormatOpaqueURIList    Format = "opaque-uri-list"
	FormatURIList          Format = "uri-list"
	FormatUnknown          Format = "unknown"
)

// Result 一次识别的产物。Config 与 Nodes 至多一个非空。
type Result struct {
	Format   Format
	Config   *domain.SubscriptionConfig
	Nodes    []domain.ProxyNode
	Warnings []string
}

// Usable 是否得到了结构化配置或至少一个节点。
func (r Result) Usable() bool {
	return r.Config != nil || len(r.Nodes) > 0
}

// Detect 依次尝试：结构化文档 → base64 包裹的结构化文档 / URI 列表 → 明文 URI 列表。
func Detect(body []byte) Result {
	if res, ok := ParseStructured(body); ok {
		return Result{Format: FormatStructured, Config: res.Config, Warnings: res.Warnings}
	}

	if decoded, ok := DecodeOpaque(body); ok {
		if res, ok := ParseStructured([]byte(decoded)); ok {
			return Result{Format: FormatOpaqueStructured, Config: res.Config, Warnings: res.Warnings}
		}
		if nodes, warnings := ParseURIList(decoded); len(nodes) > 0 {
			return Result{Format: FormatOpaqueURIList, Nodes: nodes, Warnings: warnings}
		}
	}

	if nodes, warnings := ParseURIList(string(body)); len(nodes) > 0 {
		return Result{Format: FormatURIList, Nodes: nodes, Warnings: warnings}
	}
	return Result{Format: FormatUnknown}
}

// ParseStructured 解析 Clash/mihomo YAML。顶层不是带 proxies 序列的 mapping 时返回 false。
func ParseStructured(data []byte) (domain.DecodeResult, bool) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return domain.DecodeResult{}, false
	}
	res, err := domain.DecodeConfig(data)
	if err != nil {
		return domain.DecodeResult{}, false
	}
	for _, w := range res.Warnings {
		logrus.Warnf("[Subscription] dropped entry: %s", w)
	}
	for _, node := range res.Config.Proxies {
		if unknown := UnknownFields(node); len(unknown) > 0 {
			logrus.Debugf("[Subscription] node %q (%s) carries unmodelled keys %v", node.Name, node.Type, unknown)
		}
	}
	return res, true
}

var opaquePattern = regexp.MustCompile(`^[A-Za-z0-9+/=_-]+$`)

// DecodeOpaque 去掉所有空白后按 base64 解码，得到合法 UTF-8 文本才算成功。
func DecodeOpaque(data []byte) (string, bool) {
	compact := strings.Join(strings.Fields(string(data)), "")
	if compact == "" || !opaquePattern.MatchString(compact) {
		return "", false
	}
	decoded, err := decodeBase64Flexible(compact)
	if err != nil || len(decoded) == 0 || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}

// ParseURIList 逐行解析分享链接，跳过空行、注释与未注册协议；格式错误的行记为警告。
func ParseURIList(text string) ([]domain.ProxyNode, []string) {
	var (
		nodes    []domain.ProxyNode
		warnings []string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parser, ok := lookupScheme(line)
		if !ok {
			continue
		}
		node, matched, err := parser(line)
		if !matched {
			continue
		}
		if err != nil {
			logrus.Debugf("[Subscription] skip malformed link: %v", err)
			warnings = append(warnings, err.Error())
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, warnings
}
