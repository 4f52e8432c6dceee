package subscription

import (
	"net/url"
	"strings"

	"clashsub/backend/domain"
)

// parseShadowsocks 解析 ss:// 链接。
//
// 支持两种写法：
//  1. SIP002: ss://base64(method:password)@host:port/?plugin=...#name
//  2. 明文 userinfo: ss://method:password@host:port#name
func parseShadowsocks(link string) (domain.ProxyNode, bool, error) {
	if !hasScheme(link, "ss") {
		return domain.ProxyNode{}, false, nil
	}
	body := strings.TrimSpace(link)[len("ss://"):]

	var name string
	if idx := strings.LastIndex(body, "#"); idx != -1 {
		name = decodeFragment(body[idx+1:])
		body = body[:idx]
	}

	at := strings.LastIndex(body, "@")
	if at == -1 {
		// 旧格式 ss://base64(method:password@host:port)
		decoded, err := decodeBase64Flexible(body)
		if err != nil {
			return domain.ProxyNode{}, true, malformedf("ss", err, "unsupported link format")
		}
		body = string(decoded)
		at = strings.LastIndex(body, "@")
		if at == -1 {
			return domain.ProxyNode{}, true, malformed("ss", "missing server")
		}
	}
	userinfo, hostPortQuery := body[:at], body[at+1:]

	method, password, ok := splitMethodPassword(userinfo)
	if !ok {
		return domain.ProxyNode{}, true, malformed("ss", "invalid method:password")
	}

	var queryStr string
	if qIdx := strings.Index(hostPortQuery, "?"); qIdx != -1 {
		queryStr = hostPortQuery[qIdx+1:]
		hostPortQuery = hostPortQuery[:qIdx]
	}
	hostPortQuery = strings.TrimSuffix(hostPortQuery, "/")
	if sIdx := strings.Index(hostPortQuery, "/"); sIdx != -1 {
		hostPortQuery = hostPortQuery[:sIdx]
	}

	host, portStr, err := splitHostPort(hostPortQuery)
	if err != nil {
		return domain.ProxyNode{}, true, malformedf("ss", err, "invalid host:port")
	}
	if host == "" {
		return domain.ProxyNode{}, true, malformed("ss", "missing host")
	}
	port, ok := parsePort(portStr)
	if !ok {
		return domain.ProxyNode{}, true, malformed("ss", "missing or invalid port")
	}
	if name == "" {
		name = host
	}

	node := domain.ProxyNode{Name: name, Type: domain.ProxyTypeShadowsocks}
	node.Fields.Set("server", host)
	node.Fields.Set("port", port)
	node.Fields.Set("cipher", method)
	node.Fields.Set("password", password)
	node.Fields.Set("udp", true)

	if queryStr != "" {
		params, _ := url.ParseQuery(queryStr)
		if plugin := params.Get("plugin"); plugin != "" {
			applySSPlugin(&node, plugin)
		}
	}
	return node, true, nil
}

func splitMethodPassword(userinfo string) (string, string, bool) {
	if unescaped, err := url.PathUnescape(userinfo); err == nil {
		userinfo = unescaped
	}
	if method, password, ok := strings.Cut(userinfo, ":"); ok && method != "" {
		return method, password, true
	}
	decoded, err := decodeBase64Flexible(userinfo)
	if err != nil {
		return "", "", false
	}
	method, password, ok := strings.Cut(string(decoded), ":")
	if !ok || method == "" {
		return "", "", false
	}
	return method, password, true
}

// applySSPlugin plugin 格式: obfs-local;obfs=http;obfs-host=example.com
func applySSPlugin(node *domain.ProxyNode, plugin string) {
	parts := strings.Split(plugin, ";")
	pluginName := strings.TrimSpace(parts[0])
	var opts domain.Fields
	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		opts.Set(key, strings.TrimSpace(value))
	}

	switch pluginName {
	case "obfs-local", "simple-obfs", "obfs":
		var mapped domain.Fields
		mapped.Set("mode", opts.String("obfs"))
		if host := opts.String("obfs-host"); host != "" {
			mapped.Set("host", host)
		}
		node.Fields.Set("plugin", "obfs")
		node.Fields.Set("plugin-opts", mapped)
	case "v2ray-plugin":
		var mapped domain.Fields
		mapped.Set("mode", "websocket")
		if opts.Has("tls") {
			mapped.Set("tls", true)
		}
		if host := opts.String("host"); host != "" {
			mapped.Set("host", host)
		}
		if path := opts.String("path"); path != "" {
			mapped.Set("path", path)
		}
		node.Fields.Set("plugin", "v2ray-plugin")
		node.Fields.Set("plugin-opts", mapped)
	default:
		node.Fields.Set("plugin", pluginName)
		if len(opts) > 0 {
			node.Fields.Set("plugin-opts", opts)
		}
	}
}
