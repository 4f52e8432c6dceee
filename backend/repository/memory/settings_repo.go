package memory

import (
	"context"
	"sort"

	"clashsub/backend/repository"
	"clashsub/backend/repository/events"
)

// SettingsRepo 设置仓储实现
type SettingsRepo struct {
	store *Store
}

// NewSettingsRepo 创建设置仓储
func NewSettingsRepo(store *Store) *SettingsRepo {
	return &SettingsRepo{store: store}
}

// Get 读取设置
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, bool) {
	r.store.RLock()
	defer r.store.RUnlock()
	v, ok := r.store.Settings()[key]
	return v, ok
}

// Set 写入单个设置
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return repository.ErrInvalidData
	}

	r.store.Lock()
	old, existed := r.store.Settings()[key]
	r.store.Settings()[key] = value
	r.store.Unlock()

	if existed && old == value {
		return nil
	}
	// 在锁外发布事件
	r.store.PublishEvent(events.SettingsEvent{
		EventType: events.EventSettingsChanged,
		Keys:      []string{key},
	})
	return nil
}

// Replace 整体替换设置，返回发生变化的键（有序）
func (r *SettingsRepo) Replace(ctx context.Context, values map[string]string) []string {
	r.store.Lock()
	current := r.store.Settings()
	var changed []string
	for k, v := range values {
		if old, ok := current[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range current {
		if _, ok := values[k]; !ok {
			changed = append(changed, k)
		}
	}
	for k := range current {
		delete(current, k)
	}
	for k, v := range values {
		current[k] = v
	}
	r.store.Unlock()

	sort.Strings(changed)
	if len(changed) > 0 {
		r.store.PublishEvent(events.SettingsEvent{
			EventType: events.EventSettingsChanged,
			Keys:      changed,
		})
	}
	return changed
}

// All 全部设置的副本
func (r *SettingsRepo) All(ctx context.Context) map[string]string {
	r.store.RLock()
	defer r.store.RUnlock()
	out, _ := r.store.SnapshotSettings()
	return out
}

// 确保实现接口
var _ repository.SettingsRepository = (*SettingsRepo)(nil)
