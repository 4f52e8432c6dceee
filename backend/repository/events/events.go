package events

import "time"

// EventType 事件类型
type EventType string

const (
	// 订阅事件
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionFailed  EventType = "subscription.failed"

	// 节点切换事件
	EventProxySelected EventType = "proxy.selected"

	// 进程事件
	EventProcessStarted EventType = "process.started"
	EventProcessStopped EventType = "process.stopped"

	// 设置事件
	EventSettingsChanged EventType = "settings.changed"

	// 通配符事件（用于订阅所有事件）
	EventAll EventType = "*"
)

// Event 事件接口
type Event interface {
	Type() EventType
}

// SubscriptionEvent 订阅更新结果
type SubscriptionEvent struct {
	EventType  EventType
	Format     string
	ProxyCount int
	Duration   time.Duration
	Err        error
}

func (e SubscriptionEvent) Type() EventType { return e.EventType }

// SelectionEvent 节点切换
type SelectionEvent struct {
	EventType EventType
	Node      string
	Group     string
	Err       error
}

func (e SelectionEvent) Type() EventType { return e.EventType }

// ProcessEvent 内核启停
type ProcessEvent struct {
	EventType EventType
	Err       error
}

func (e ProcessEvent) Type() EventType { return e.EventType }

// SettingsEvent 设置变更
type SettingsEvent struct {
	EventType EventType
	Keys      []string
}

func (e SettingsEvent) Type() EventType { return e.EventType }
