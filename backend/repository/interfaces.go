package repository

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// 设置键
const (
	SettingSubscriptionURL = "clash_subscription_url"
	SettingUpdateInterval  = "clash_update_interval"
	SettingEnabled         = "clash_enabled"
	SettingProxyNode       = "clash_proxy_node"
	SettingUpdateCron      = "clash_update_cron"
)

// KnownSettings 已知设置键（环境变量覆盖与文件加载共用）
var KnownSettings = []string{
	SettingSubscriptionURL,
	SettingUpdateInterval,
	SettingEnabled,
	SettingProxyNode,
	SettingUpdateCron,
}

// SettingsSource 只读设置源
type SettingsSource interface {
	Get(ctx context.Context, key string) (string, bool)
}

// SettingsRepository 可写设置仓储
type SettingsRepository interface {
	SettingsSource
	Set(ctx context.Context, key, value string) error
	Replace(ctx context.Context, values map[string]string) []string
	All(ctx context.Context) map[string]string
}

// GetString 读取字符串设置，缺失或空白返回 def。
func GetString(ctx context.Context, src SettingsSource, key, def string) string {
	if src == nil {
		return def
	}
	v, ok := src.Get(ctx, key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// GetBool 读取布尔设置。
func GetBool(ctx context.Context, src SettingsSource, key string, def bool) bool {
	v := GetString(ctx, src, key, "")
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

// MaxSeconds GetSeconds 可表示的最大秒数，超出部分截断。
const MaxSeconds = int64(math.MaxInt64 / int64(time.Second))

// GetSeconds 读取以秒为单位的整数设置；非法或非正值返回 def，过大值截断为 MaxSeconds。
func GetSeconds(ctx context.Context, src SettingsSource, key string, def time.Duration) time.Duration {
	v := GetString(ctx, src, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) && !strings.HasPrefix(v, "-") {
			return time.Duration(MaxSeconds) * time.Second
		}
		return def
	}
	if n <= 0 {
		return def
	}
	if n > MaxSeconds {
		n = MaxSeconds
	}
	return time.Duration(n) * time.Second
}
