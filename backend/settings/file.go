package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clashsub/backend/repository"
)

// EnvPrefix 环境变量覆盖前缀：clash_enabled -> CLASHSUB_CLASH_ENABLED
const EnvPrefix = "CLASHSUB_"

// LoadFile 读取 YAML 设置文件（顶层为标量键值）；文件不存在时返回空表。
func LoadFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if strings.TrimSpace(path) == "" {
		return values, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return values, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: settings %s must be a mapping", repository.ErrInvalidData, path)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, val := doc.Content[i], doc.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: setting %q must be a scalar", repository.ErrInvalidData, key.Value)
		}
		if val.Tag == "!!null" {
			continue
		}
		values[key.Value] = val.Value
	}
	return values, nil
}

// EnvName 设置键对应的环境变量名。
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(key)
}

// ApplyEnv 用环境变量覆盖已知设置键。
func ApplyEnv(values map[string]string, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range repository.KnownSettings {
		if v, ok := lookup(EnvName(key)); ok {
			values[key] = v
		}
	}
}
