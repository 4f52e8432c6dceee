package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"clashsub/backend/repository"
)

// DefaultDebounce 连续写入只触发一次重载
const DefaultDebounce = 200 * time.Millisecond

// FileSource 把 YAML 设置文件与环境变量同步进设置仓储，并监听文件变化热重载。
type FileSource struct {
	path     string
	repo     repository.SettingsRepository
	lookup   func(string) (string, bool)
	debounce time.Duration

	mu sync.Mutex
}

// NewFileSource 创建设置文件源。
func NewFileSource(path string, repo repository.SettingsRepository) *FileSource {
	return &FileSource{
		path:     path,
		repo:     repo,
		lookup:   os.LookupEnv,
		debounce: DefaultDebounce,
	}
}

// Path 设置文件路径。
func (s *FileSource) Path() string { return s.path }

// Reload 重新读取文件并叠加环境变量覆盖，返回发生变化的键。
func (s *FileSource) Reload(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := LoadFile(s.path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(values, s.lookup)
	changed := s.repo.Replace(ctx, values)
	if len(changed) > 0 {
		logrus.Infof("[Settings] loaded %s, changed keys: %v", s.path, changed)
	}
	return changed, nil
}

// Watch 监听设置文件所在目录，文件变化后防抖重载；阻塞直到 ctx 取消。
func (s *FileSource) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// 监听目录而不是文件：编辑器常用改名替换的方式保存
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logrus.Infof("[Settings] watching %s", s.path)

	target := filepath.Clean(s.path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			logrus.Debugf("[Settings] %s %s", event.Op, event.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				if _, err := s.Reload(ctx); err != nil {
					logrus.Warnf("[Settings] reload failed: %v", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logrus.Warnf("[Settings] watcher error: %v", err)
		}
	}
}
