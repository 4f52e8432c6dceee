package domain

import "strings"

const (
	// FieldFingerprint 证书 SHA-256 指纹（固定证书）。
	FieldFingerprint = "fingerprint"
	// FieldClientFingerprint uTLS 客户端指纹（chrome、firefox 等）。
	FieldClientFingerprint = "client-fingerprint"
)

// IsCertFingerprint 判断是否为 64 位十六进制的证书哈希。
func IsCertFingerprint(value string) bool {
	if len(value) != 64 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// CertPin 规范化证书固定值：去掉冒号分隔（AB:CD:...），不是 64 位十六进制时返回 false。
func CertPin(value string) (string, bool) {
	pin := strings.ReplaceAll(strings.TrimSpace(value), ":", "")
	if !IsCertFingerprint(pin) {
		return "", false
	}
	return pin, true
}

// SetFingerprint 按取值形态把指纹写入 fingerprint 或 client-fingerprint，二者互斥。
func (n *ProxyNode) SetFingerprint(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if IsCertFingerprint(value) {
		n.Fields.Set(FieldFingerprint, value)
		return
	}
	n.Fields.Delete(FieldFingerprint)
	n.Fields.Set(FieldClientFingerprint, value)
}

// NormalizeFingerprint 修正订阅里误把 uTLS 名称写在 fingerprint 下的节点。
// 已存在的 client-fingerprint 优先保留。
func (n *ProxyNode) NormalizeFingerprint() {
	raw := strings.TrimSpace(n.Fields.String(FieldFingerprint))
	if raw == "" || IsCertFingerprint(raw) {
		return
	}
	n.Fields.Delete(FieldFingerprint)
	if strings.TrimSpace(n.Fields.String(FieldClientFingerprint)) == "" {
		n.Fields.Set(FieldClientFingerprint, raw)
	}
}
