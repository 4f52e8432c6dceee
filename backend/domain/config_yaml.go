package domain

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// 顶层键
const (
	KeyMixedPort          = "mixed-port"
	KeyAllowLAN           = "allow-lan"
	KeyMode               = "mode"
	KeyExternalController = "external-controller"
	KeySecret             = "secret"
	KeyProxies            = "proxies"
	KeyProxyGroups        = "proxy-groups"
	KeyRules              = "rules"
)

var defaultKeyOrder = []string{
	KeyMixedPort, KeyAllowLAN, KeyMode, KeyExternalController, KeySecret,
	KeyProxies, KeyProxyGroups, KeyRules,
}

// ErrNotConfigDocument 文档不是带 proxies 序列的 mapping。
var ErrNotConfigDocument = errors.New("document is not a proxy config")

// DecodeResult 解码结构化配置的结果。Warnings 记录被丢弃的条目。
type DecodeResult struct {
	Config   *SubscriptionConfig
	Warnings []string
}

// DecodeConfig 解析 YAML 文本为配置。
// 只有顶层为 mapping 且 proxies 为序列时才视为配置文档，否则返回 ErrNotConfigDocument。
func DecodeConfig(data []byte) (DecodeResult, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DecodeResult{}, fmt.Errorf("%w: %v", ErrNotConfigDocument, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return DecodeResult{}, ErrNotConfigDocument
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return DecodeResult{}, ErrNotConfigDocument
	}

	top, err := decodeMapping(root)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: %v", ErrNotConfigDocument, err)
	}
	rawProxies, ok := top.Get(KeyProxies)
	if !ok {
		return DecodeResult{}, ErrNotConfigDocument
	}
	proxyItems, ok := rawProxies.([]interface{})
	if !ok {
		return DecodeResult{}, ErrNotConfigDocument
	}

	res := DecodeResult{Config: &SubscriptionConfig{}}
	cfg := res.Config
	for _, field := range top {
		cfg.KeyOrder = append(cfg.KeyOrder, field.Key)
		switch field.Key {
		case KeyMixedPort:
			cfg.MixedPort = top.Int(KeyMixedPort)
		case KeyAllowLAN:
			cfg.AllowLAN, _ = field.Value.(bool)
		case KeyMode:
			cfg.Mode = scalarString(field.Value)
		case KeyExternalController:
			cfg.ExternalController = scalarString(field.Value)
		case KeySecret:
			cfg.Secret = scalarString(field.Value)
		case KeyProxies:
		case KeyProxyGroups:
			items, _ := field.Value.([]interface{})
			for i, item := range items {
				group, err := groupFromValue(item)
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("proxy-groups[%d]: %v", i, err))
					continue
				}
				cfg.ProxyGroups = append(cfg.ProxyGroups, group)
			}
		case KeyRules:
			items, _ := field.Value.([]interface{})
			for _, item := range items {
				if rule := strings.TrimSpace(scalarString(item)); rule != "" {
					cfg.Rules = append(cfg.Rules, rule)
				}
			}
		default:
			cfg.Extra = append(cfg.Extra, field)
		}
	}

	for i, item := range proxyItems {
		node, err := nodeFromValue(item)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("proxies[%d]: %v", i, err))
			continue
		}
		cfg.Proxies = append(cfg.Proxies, node)
	}
	return res, nil
}

func nodeFromValue(v interface{}) (ProxyNode, error) {
	fields, ok := v.(Fields)
	if !ok {
		return ProxyNode{}, errors.New("entry is not a mapping")
	}
	name := strings.TrimSpace(fields.String("name"))
	if name == "" {
		return ProxyNode{}, errors.New("entry has no name")
	}
	node := ProxyNode{Name: name, Type: strings.TrimSpace(fields.String("type"))}
	for _, field := range fields {
		if field.Key == "name" || field.Key == "type" {
			continue
		}
		node.Fields = append(node.Fields, field)
	}
	return node, nil
}

func groupFromValue(v interface{}) (ProxyGroup, error) {
	fields, ok := v.(Fields)
	if !ok {
		return ProxyGroup{}, errors.New("entry is not a mapping")
	}
	name := strings.TrimSpace(fields.String("name"))
	if name == "" {
		return ProxyGroup{}, errors.New("entry has no name")
	}
	group := ProxyGroup{Name: name, Type: strings.TrimSpace(fields.String("type"))}
	for _, field := range fields {
		switch field.Key {
		case "name", "type":
		case "proxies":
			items, _ := field.Value.([]interface{})
			for _, item := range items {
				if member := scalarString(item); member != "" {
					group.Proxies = append(group.Proxies, member)
				}
			}
		default:
			group.Extra = append(group.Extra, field)
		}
	}
	return group, nil
}

// MarshalYAML name、type 在前，其余字段保持顺序。
func (n ProxyNode) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	node.Content = append(node.Content,
		keyNode("name"), strNode(n.Name),
		keyNode("type"), strNode(n.Type),
	)
	if err := n.Fields.appendTo(node); err != nil {
		return nil, err
	}
	return node, nil
}

// MarshalYAML name、type、proxies 在前，其余字段保持顺序。
func (g ProxyGroup) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	node.Content = append(node.Content,
		keyNode("name"), strNode(g.Name),
		keyNode("type"), strNode(g.Type),
		keyNode("proxies"), strSeq(g.Proxies),
	)
	if err := g.Extra.appendTo(node); err != nil {
		return nil, err
	}
	return node, nil
}

// MarshalYAML 按 KeyOrder 输出顶层键，未出现过的键按默认顺序追加。
func (c SubscriptionConfig) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	written := make(map[string]struct{})

	emit := func(key string) error {
		if _, done := written[key]; done {
			return nil
		}
		value, ok, err := c.topValue(key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		written[key] = struct{}{}
		node.Content = append(node.Content, keyNode(key), value)
		return nil
	}

	for _, key := range c.KeyOrder {
		if err := emit(key); err != nil {
			return nil, err
		}
	}
	for _, key := range defaultKeyOrder {
		if err := emit(key); err != nil {
			return nil, err
		}
	}
	for _, field := range c.Extra {
		if err := emit(field.Key); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (c SubscriptionConfig) topValue(key string) (*yaml.Node, bool, error) {
	switch key {
	case KeyMixedPort:
		return scalarNode(c.MixedPort), true, nil
	case KeyAllowLAN:
		return scalarNode(c.AllowLAN), true, nil
	case KeyMode:
		return strNode(c.Mode), c.Mode != "", nil
	case KeyExternalController:
		return strNode(c.ExternalController), c.ExternalController != "", nil
	case KeySecret:
		return strNode(c.Secret), c.Secret != "", nil
	case KeyProxies:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, p := range c.Proxies {
			out, err := p.MarshalYAML()
			if err != nil {
				return nil, false, fmt.Errorf("proxy %q: %w", p.Name, err)
			}
			seq.Content = append(seq.Content, out.(*yaml.Node))
		}
		return seq, true, nil
	case KeyProxyGroups:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, g := range c.ProxyGroups {
			out, err := g.MarshalYAML()
			if err != nil {
				return nil, false, fmt.Errorf("group %q: %w", g.Name, err)
			}
			seq.Content = append(seq.Content, out.(*yaml.Node))
		}
		return seq, true, nil
	case KeyRules:
		return strSeq(c.Rules), true, nil
	}
	v, ok := c.Extra.Get(key)
	if !ok {
		return nil, false, nil
	}
	out, err := encodeValue(v)
	if err != nil {
		return nil, false, fmt.Errorf("encode %q: %w", key, err)
	}
	return out, true, nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func strSeq(items []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, item := range items {
		seq.Content = append(seq.Content, strNode(item))
	}
	return seq
}

func scalarNode(v interface{}) *yaml.Node {
	node := &yaml.Node{}
	_ = node.Encode(v)
	return node
}
