package persist

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"clashsub/backend/domain"
)

// ErrConfigNotFound 配置文件不存在。
var ErrConfigNotFound = errors.New("config file not found")

// WriteConfig 序列化配置（保持键的插入顺序）并原子写入。
func WriteConfig(path string, cfg *domain.SubscriptionConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := atomicWrite(path, data, 0o600); err != nil {
		logrus.Errorf("[Persist] write config %s failed: %v", path, err)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ReadConfig 读取并解析持久化的配置。
func ReadConfig(path string) (*domain.SubscriptionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	res, err := domain.DecodeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return res.Config, nil
}

// ConfigExists 配置文件是否存在。
func ConfigExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
