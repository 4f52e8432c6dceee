package subscription

import (
	"fmt"
	"net/url"
	"strings"

	"clashsub/backend/domain"
)

// parseHysteria2 解析 hysteria2:// 与 hy2:// 链接。
//
// 很多机场的 Clash 转换会丢掉 hysteria2 节点，所以 URI 订阅里的节点需要补回配置。
func parseHysteria2(link string) (domain.ProxyNode, bool, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		scheme, _, _ := strings.Cut(link, "://")
		switch strings.ToLower(scheme) {
		case "hysteria2", "hy2":
			return domain.ProxyNode{}, true, malformedf("hysteria2", err, "invalid uri")
		}
		return domain.ProxyNode{}, false, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "hysteria2", "hy2":
	default:
		return domain.ProxyNode{}, false, nil
	}

	server := u.Hostname()
	if server == "" {
		return domain.ProxyNode{}, true, malformed("hysteria2", "missing host")
	}
	port, ok := parsePort(u.Port())
	if !ok {
		return domain.ProxyNode{}, true, malformed("hysteria2", "missing or invalid port")
	}

	q := u.Query()
	password := hysteria2Password(u.User)
	if password == "" {
		password = firstQueryValue(q, "password", "auth", "auth_str", "passwd")
	}
	if password == "" {
		return domain.ProxyNode{}, true, malformed("hysteria2", "missing password")
	}

	name := decodeFragment(u.EscapedFragment())
	if name == "" {
		name = fmt.Sprintf("hysteria2-%s:%d", server, port)
	}

	node := domain.ProxyNode{Name: name, Type: domain.ProxyTypeHysteria2}
	node.Fields.Set("server", server)
	node.Fields.Set("port", port)
	node.Fields.Set("password", password)

	if ports := firstQueryValue(q, "ports", "mport"); ports != "" {
		node.Fields.Set("ports", ports)
	}
	if up := formatRate(firstQueryValue(q, "up", "upmbps")); up != "" {
		node.Fields.Set("up", up)
	}
	if down := formatRate(firstQueryValue(q, "down", "downmbps")); down != "" {
		node.Fields.Set("down", down)
	}
	if obfs := firstQueryValue(q, "obfs"); obfs != "" {
		node.Fields.Set("obfs", obfs)
	}
	if obfsPassword := firstQueryValue(q, "obfs-password", "obfs_password", "obfsPassword"); obfsPassword != "" {
		node.Fields.Set("obfs-password", obfsPassword)
	}
	if sni := firstQueryValue(q, "sni", "peer"); sni != "" {
		node.Fields.Set("sni", sni)
	}
	if isTruthy(firstQueryValue(q, "insecure", "allowInsecure", "allow_insecure")) {
		node.Fields.Set("skip-cert-verify", true)
	}
	if fp := firstQueryValue(q, "fingerprint"); fp != "" {
		node.SetFingerprint(fp)
	} else if pin, ok := domain.CertPin(firstQueryValue(q, "pinSHA256")); ok {
		node.SetFingerprint(pin)
	}
	if alpn := queryList(q, "alpn"); len(alpn) > 0 {
		node.Fields.Set("alpn", stringsToList(alpn))
	}
	return node, true, nil
}

func hysteria2Password(user *url.Userinfo) string {
	if user == nil {
		return ""
	}
	username := user.Username()
	if pw, ok := user.Password(); ok && username != "" && pw != "" {
		return username + ":" + pw
	}
	return username
}

func stringsToList(items []string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
