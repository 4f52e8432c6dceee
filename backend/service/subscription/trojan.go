package subscription

import (
	"net/url"
	"strings"

	"clashsub/backend/domain"
)

// parseTrojan 解析 trojan://password@host:port?sni=...#name
func parseTrojan(link string) (domain.ProxyNode, bool, error) {
	if !hasScheme(link, "trojan") {
		return domain.ProxyNode{}, false, nil
	}
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return domain.ProxyNode{}, true, malformedf("trojan", err, "invalid uri")
	}
	server := u.Hostname()
	if server == "" {
		return domain.ProxyNode{}, true, malformed("trojan", "missing host")
	}
	port := 443
	if u.Port() != "" {
		p, ok := parsePort(u.Port())
		if !ok {
			return domain.ProxyNode{}, true, malformed("trojan", "invalid port")
		}
		port = p
	}
	password := ""
	if u.User != nil {
		password = u.User.Username()
	}
	if password == "" {
		return domain.ProxyNode{}, true, malformed("trojan", "missing password")
	}

	q := u.Query()
	name := decodeFragment(u.EscapedFragment())
	if name == "" {
		name = server
	}

	node := domain.ProxyNode{Name: name, Type: domain.ProxyTypeTrojan}
	node.Fields.Set("server", server)
	node.Fields.Set("port", port)
	node.Fields.Set("password", password)
	node.Fields.Set("udp", true)
	if sni := firstQueryValue(q, "sni", "peer"); sni != "" {
		node.Fields.Set("sni", sni)
	}
	if isTruthy(firstQueryValue(q, "allowInsecure", "insecure")) {
		node.Fields.Set("skip-cert-verify", true)
	}
	node.SetFingerprint(q.Get("fp"))
	if alpn := queryList(q, "alpn"); len(alpn) > 0 {
		node.Fields.Set("alpn", stringsToList(alpn))
	}
	applyTransport(&node, q.Get("type"), q.Get("host"), q.Get("path"), q.Get("serviceName"))
	return node, true, nil
}
