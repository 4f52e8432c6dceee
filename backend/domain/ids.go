package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// StableNodeID 基于节点类型、地址、端口与名称生成稳定 ID。
// 同一订阅多次拉取时，参数未变的节点保持相同 ID，便于前端按行复用。
func StableNodeID(node ProxyNode) string {
	key := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(node.Type)),
		strings.ToLower(strings.TrimSpace(node.Server())),
		strconv.Itoa(node.Port()),
		node.Name,
	}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("node|"+key)).String()
}

// NodeInfoFor 生成节点列表视图。
func NodeInfoFor(node ProxyNode) NodeInfo {
	return NodeInfo{
		ID:     StableNodeID(node),
		Name:   node.Name,
		Type:   node.Type,
		Server: node.Server(),
		Port:   node.Port(),
	}
}
