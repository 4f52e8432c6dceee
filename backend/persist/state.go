package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// SchemaVersion 状态文件版本。
const SchemaVersion = "1"

// ErrSchemaMismatch 状态文件版本不兼容。
var ErrSchemaMismatch = errors.New("state schema version mismatch")

// State 跨重启保留的运行状态。
type State struct {
	SchemaVersion string     `json:"schemaVersion"`
	LastUpdate    *time.Time `json:"lastUpdate,omitempty"`
	CurrentProxy  string     `json:"currentProxy,omitempty"`
	GeneratedAt   time.Time  `json:"generatedAt"`
}

// StateStore 状态文件读写。
type StateStore struct {
	path string
	mu   sync.Mutex
}

// NewStateStore 创建状态存储。
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load 加载状态（严格版本校验）；文件不存在或为空时返回空状态。
func (s *StateStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{SchemaVersion: SchemaVersion}, nil
		}
		return State{}, err
	}
	if len(data) == 0 {
		return State{SchemaVersion: SchemaVersion}, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parse state: %w", err)
	}
	if state.SchemaVersion != SchemaVersion {
		return State{}, fmt.Errorf("%w: got %q, want %q", ErrSchemaMismatch, state.SchemaVersion, SchemaVersion)
	}
	return state, nil
}

// Save 原子写入状态。
func (s *StateStore) Save(state State) error {
	state.SchemaVersion = SchemaVersion
	state.GeneratedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWrite(s.path, data, 0o644)
}
