package subscription

import (
	"encoding/json"
	"strconv"
	"strings"

	"clashsub/backend/domain"
)

// vmessLink v2rayN 风格的 vmess://base64(json)。端口等字段可能是字符串也可能是数字。
type vmessLink struct {
	PS   string      `json:"ps"`
	Add  string      `json:"add"`
	Port interface{} `json:"port"`
	ID   string      `json:"id"`
	Aid  interface{} `json:"aid"`
	Scy  string      `json:"scy"`
	Net  string      `json:"net"`
	Type string      `json:"type"`
	Host string      `json:"host"`
	Path string      `json:"path"`
	TLS  string      `json:"tls"`
	SNI  string      `json:"sni"`
	ALPN string      `json:"alpn"`
	FP   string      `json:"fp"`
}

func parseVMess(link string) (domain.ProxyNode, bool, error) {
	if !hasScheme(link, "vmess") {
		return domain.ProxyNode{}, false, nil
	}
	encoded := strings.TrimSpace(link)[len("vmess://"):]

	decoded, err := decodeBase64Flexible(encoded)
	if err != nil {
		return domain.ProxyNode{}, true, malformedf("vmess", err, "invalid base64")
	}
	var cfg vmessLink
	if err := json.Unmarshal(decoded, &cfg); err != nil {
		return domain.ProxyNode{}, true, malformedf("vmess", err, "invalid json")
	}

	server := strings.TrimSpace(cfg.Add)
	if server == "" {
		return domain.ProxyNode{}, true, malformed("vmess", "missing host")
	}
	port := looseInt(cfg.Port)
	if port <= 0 || port > 65535 {
		return domain.ProxyNode{}, true, malformed("vmess", "missing or invalid port")
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return domain.ProxyNode{}, true, malformed("vmess", "missing uuid")
	}

	cipher := cfg.Scy
	if cipher == "" {
		cipher = "auto"
	}
	name := strings.TrimSpace(cfg.PS)
	if name == "" {
		name = server
	}

	node := domain.ProxyNode{Name: name, Type: domain.ProxyTypeVMess}
	node.Fields.Set("server", server)
	node.Fields.Set("port", port)
	node.Fields.Set("uuid", strings.TrimSpace(cfg.ID))
	node.Fields.Set("alterId", looseInt(cfg.Aid))
	node.Fields.Set("cipher", cipher)
	node.Fields.Set("udp", true)

	if cfg.TLS == "tls" {
		node.Fields.Set("tls", true)
		sni := cfg.SNI
		if sni == "" {
			sni = cfg.Host
		}
		if sni != "" {
			node.Fields.Set("servername", sni)
		}
		node.SetFingerprint(cfg.FP)
		if cfg.ALPN != "" {
			var alpn []string
			for _, item := range strings.Split(cfg.ALPN, ",") {
				if item = strings.TrimSpace(item); item != "" {
					alpn = append(alpn, item)
				}
			}
			if len(alpn) > 0 {
				node.Fields.Set("alpn", stringsToList(alpn))
			}
		}
	}

	applyTransport(&node, cfg.Net, cfg.Host, cfg.Path, cfg.Path)
	return node, true, nil
}

func looseInt(v interface{}) int {
	switch n := v.(type) {
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	case float64:
		return int(n)
	}
	return 0
}
