package domain

import (
	"time"
)

// 常用节点类型（mihomo 的 proxies[].type 取值）
const (
	ProxyTypeHysteria2   = "hysteria2"
	ProxyTypeShadowsocks = "ss"
	ProxyTypeTrojan      = "trojan"
	ProxyTypeVLESS       = "vless"
	ProxyTypeVMess       = "vmess"
)

// 策略组类型（配置文件中的 kind）
const (
	GroupSelect      = "select"
	GroupURLTest     = "url-test"
	GroupFallback    = "fallback"
	GroupLoadBalance = "load-balance"
	GroupRelay       = "relay"
)

const (
	// GlobalGroupName 全局选择组，运行在 global 模式下时生效。
	GlobalGroupName = "GLOBAL"
	// DirectProxyName 内置直连出口，总是排在 GLOBAL 成员末尾。
	DirectProxyName = "DIRECT"
)

// ProxyNode 一个代理节点。Name 与 Type 之外的协议参数放在有序字段表中。
type ProxyNode struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Fields Fields `json:"fields,omitempty"`
}

// Server 节点地址。
func (n ProxyNode) Server() string { return n.Fields.String("server") }

// Port 节点端口。
func (n ProxyNode) Port() int { return n.Fields.Int("port") }

// Clone 深拷贝节点字段。
func (n ProxyNode) Clone() ProxyNode {
	n.Fields = n.Fields.Clone()
	return n
}

// ProxyGroup 策略组。除 name/type/proxies 外的键（url、interval、use 等）原样保留。
type ProxyGroup struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Proxies []string `json:"proxies"`
	Extra   Fields   `json:"extra,omitempty"`
}

// SubscriptionConfig 规范化后的 mihomo 配置。
//
// KeyOrder 记录顶层键在源文档中的顺序；写回时按该顺序输出，缺失的键追加在末尾。
// Extra 保存 dns、rule-providers 等未建模的顶层键。
type SubscriptionConfig struct {
	MixedPort          int
	AllowLAN           bool
	Mode               string
	ExternalController string
	Secret             string
	Proxies            []ProxyNode
	ProxyGroups        []ProxyGroup
	Rules              []string
	Extra              Fields
	KeyOrder           []string
}

// ProxyNames 按顺序返回节点名。
func (c *SubscriptionConfig) ProxyNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Proxies))
	for _, p := range c.Proxies {
		names = append(names, p.Name)
	}
	return names
}

// NodeInfo 节点列表视图。
type NodeInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Server  string `json:"server,omitempty"`
	Port    int    `json:"port,omitempty"`
	Current bool   `json:"current,omitempty"`
}

// Status 运行状态报告。
type Status struct {
	Running      bool       `json:"running"`
	CurrentProxy string     `json:"current_proxy"`
	LastUpdate   *time.Time `json:"last_update"`
	ConfigExists bool       `json:"config_exists"`
}

// UpdateResult 订阅更新结果。
type UpdateResult struct {
	Success    bool   `json:"success"`
	ProxyCount int    `json:"proxy_count,omitempty"`
	Format     string `json:"format,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SelectResult 节点切换结果。
type SelectResult struct {
	Success bool   `json:"success"`
	Node    string `json:"node,omitempty"`
	Group   string `json:"group,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ActionResult 启停等操作的结果。
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
