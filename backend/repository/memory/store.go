package memory

import (
	"sort"
	"sync"

	"clashsub/backend/repository/events"
)

// Store 内存存储引擎
type Store struct {
	mu sync.RWMutex

	// 设置键值
	settings map[string]string

	// 事件总线
	eventBus *events.Bus
}

// NewStore 创建新的内存存储
func NewStore(eventBus *events.Bus) *Store {
	return &Store{
		settings: make(map[string]string),
		eventBus: eventBus,
	}
}

// ========== 锁操作（供仓储使用）==========

// RLock 获取读锁
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock 释放读锁
func (s *Store) RUnlock() { s.mu.RUnlock() }

// Lock 获取写锁
func (s *Store) Lock() { s.mu.Lock() }

// Unlock 释放写锁
func (s *Store) Unlock() { s.mu.Unlock() }

// ========== 事件发布 ==========

// PublishEvent 发布事件（异步，应在锁外调用）
func (s *Store) PublishEvent(event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(event)
	}
}

// ========== 数据访问（调用方持锁）==========

// Settings 设置表
func (s *Store) Settings() map[string]string { return s.settings }

// SnapshotSettings 复制设置表，键有序便于日志输出
func (s *Store) SnapshotSettings() (map[string]string, []string) {
	out := make(map[string]string, len(s.settings))
	keys := make([]string, 0, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, keys
}
