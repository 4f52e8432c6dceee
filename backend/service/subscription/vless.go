package subscription

import (
	"net/url"
	"strings"

	"clashsub/backend/domain"
)

// parseVLESS 解析 vless://uuid@host:port?type=ws&security=reality...#name
func parseVLESS(link string) (domain.ProxyNode, bool, error) {
	if !hasScheme(link, "vless") {
		return domain.ProxyNode{}, false, nil
	}
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return domain.ProxyNode{}, true, malformedf("vless", err, "invalid uri")
	}
	server := u.Hostname()
	if server == "" {
		return domain.ProxyNode{}, true, malformed("vless", "missing host")
	}
	port := 443
	if u.Port() != "" {
		p, ok := parsePort(u.Port())
		if !ok {
			return domain.ProxyNode{}, true, malformed("vless", "invalid port")
		}
		port = p
	}
	uuid := ""
	if u.User != nil {
		uuid = u.User.Username()
	}
	if uuid == "" {
		return domain.ProxyNode{}, true, malformed("vless", "missing uuid")
	}

	q := u.Query()
	name := decodeFragment(u.EscapedFragment())
	if name == "" {
		name = server
	}

	node := domain.ProxyNode{Name: name, Type: domain.ProxyTypeVLESS}
	node.Fields.Set("server", server)
	node.Fields.Set("port", port)
	node.Fields.Set("uuid", uuid)
	node.Fields.Set("udp", true)
	if flow := q.Get("flow"); flow != "" {
		node.Fields.Set("flow", flow)
	}

	switch security := q.Get("security"); security {
	case "tls", "reality":
		node.Fields.Set("tls", true)
		if sni := firstQueryValue(q, "sni", "peer"); sni != "" {
			node.Fields.Set("servername", sni)
		}
		if security == "reality" {
			var reality domain.Fields
			reality.Set("public-key", q.Get("pbk"))
			if sid := q.Get("sid"); sid != "" {
				reality.Set("short-id", sid)
			}
			node.Fields.Set("reality-opts", reality)
		}
		node.SetFingerprint(q.Get("fp"))
		if alpn := queryList(q, "alpn"); len(alpn) > 0 {
			node.Fields.Set("alpn", stringsToList(alpn))
		}
		if isTruthy(firstQueryValue(q, "allowInsecure", "insecure")) {
			node.Fields.Set("skip-cert-verify", true)
		}
	}

	applyTransport(&node, q.Get("type"), q.Get("host"), q.Get("path"), q.Get("serviceName"))
	return node, true, nil
}

// applyTransport 把分享链接里的传输层参数映射为 mihomo 的 network 与 *-opts。
func applyTransport(node *domain.ProxyNode, network, host, path, serviceName string) {
	switch network {
	case "", "tcp":
		return
	case "ws", "httpupgrade":
		node.Fields.Set("network", "ws")
		var opts domain.Fields
		if path != "" {
			opts.Set("path", path)
		}
		if host != "" {
			var headers domain.Fields
			headers.Set("Host", host)
			opts.Set("headers", headers)
		}
		if network == "httpupgrade" {
			opts.Set("v2ray-http-upgrade", true)
		}
		node.Fields.Set("ws-opts", opts)
	case "grpc":
		node.Fields.Set("network", "grpc")
		var opts domain.Fields
		opts.Set("grpc-service-name", serviceName)
		node.Fields.Set("grpc-opts", opts)
	case "h2", "http":
		node.Fields.Set("network", "h2")
		var opts domain.Fields
		if host != "" {
			opts.Set("host", stringsToList(strings.Split(host, ",")))
		}
		if path != "" {
			opts.Set("path", path)
		}
		node.Fields.Set("h2-opts", opts)
	default:
		node.Fields.Set("network", network)
	}
}

func hasScheme(link, scheme string) bool {
	link = strings.TrimSpace(link)
	return len(link) > len(scheme)+3 && strings.EqualFold(link[:len(scheme)+3], scheme+"://")
}
