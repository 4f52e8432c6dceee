package subscription

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// decodeBase64Flexible 自动补齐 padding，先试标准字母表再试 URL 安全字母表。
func decodeBase64Flexible(value string) ([]byte, error) {
	value = strings.TrimRight(strings.TrimSpace(value), "=")
	if value == "" {
		return nil, errors.New("empty base64 input")
	}
	if rem := len(value) % 4; rem != 0 {
		value += strings.Repeat("=", 4-rem)
	}
	if data, err := base64.StdEncoding.DecodeString(value); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(value)
}

// firstQueryValue 依次取第一个非空的查询参数。
func firstQueryValue(q url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

// queryList 支持重复参数与逗号分隔两种写法，丢弃空项。
func queryList(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// formatRate 纯数字补上 " Mbps"，已带单位的原样返回。
func formatRate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, r := range value {
		if unicode.IsLetter(r) {
			return value
		}
	}
	return value + " Mbps"
}

// decodeFragment 解码 #name，失败时返回原文。
func decodeFragment(raw string) string {
	if raw == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		return strings.TrimSpace(decoded)
	}
	return strings.TrimSpace(raw)
}

func parsePort(raw string) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// splitHostPort 分离 host 和 port，兼容 [IPv6]:port 与缺省端口。
func splitHostPort(hostPort string) (string, string, error) {
	if strings.HasPrefix(hostPort, "[") {
		end := strings.Index(hostPort, "]")
		if end == -1 {
			return "", "", errors.New("invalid IPv6 address")
		}
		host := hostPort[1:end]
		if len(hostPort) > end+2 && hostPort[end+1] == ':' {
			return host, hostPort[end+2:], nil
		}
		return host, "", nil
	}

	idx := strings.LastIndex(hostPort, ":")
	if idx == -1 {
		return hostPort, "", nil
	}
	return hostPort[:idx], hostPort[idx+1:], nil
}
