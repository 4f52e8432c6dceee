package subscription

import "clashsub/backend/domain"

// commonFields mihomo 所有出站共有的键。
var commonFields = []string{
	"server", "port", "udp", "ip-version", "interface-name", "routing-mark",
	"tfo", "mptcp", "dialer-proxy", "smux",
}

var tlsFields = []string{
	"tls", "sni", "servername", "skip-cert-verify", "alpn",
	domain.FieldFingerprint, domain.FieldClientFingerprint, "reality-opts", "ech-opts",
}

var transportFields = []string{
	"network", "ws-opts", "grpc-opts", "h2-opts", "http-opts",
}

// KnownFields 每种节点类型已建模的键。未列出的键照样透传，只用于诊断日志。
var KnownFields = map[string][]string{
	domain.ProxyTypeHysteria2:   join(commonFields, tlsFields, []string{"password", "ports", "hop-interval", "up", "down", "obfs", "obfs-password"}),
	domain.ProxyTypeShadowsocks: join(commonFields, []string{"cipher", "password", "plugin", "plugin-opts", "udp-over-tcp", "udp-over-tcp-version"}),
	domain.ProxyTypeTrojan:      join(commonFields, tlsFields, transportFields, []string{"password", "ss-opts"}),
	domain.ProxyTypeVLESS:       join(commonFields, tlsFields, transportFields, []string{"uuid", "flow", "packet-encoding", "encryption"}),
	domain.ProxyTypeVMess:       join(commonFields, tlsFields, transportFields, []string{"uuid", "alterId", "cipher", "packet-encoding", "global-padding", "authenticated-length"}),
}

// UnknownFields 返回节点上不在 KnownFields 中的键；未登记的类型返回 nil。
func UnknownFields(node domain.ProxyNode) []string {
	known, ok := KnownFields[node.Type]
	if !ok {
		return nil
	}
	set := make(map[string]struct{}, len(known))
	for _, key := range known {
		set[key] = struct{}{}
	}
	var out []string
	for _, key := range node.Fields.Keys() {
		if _, ok := set[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}

func join(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
