package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field 有序字段表中的一项。
type Field struct {
	Key   string
	Value interface{}
}

// Fields 保持插入顺序的开放字段表。
//
// 值可以是标量（string/int/bool/float64）、[]string、[]interface{} 或嵌套的 Fields。
// 从 YAML 读入时，嵌套映射会被解码为 Fields，从而在写回时保留原始键顺序。
type Fields []Field

func (f Fields) index(key string) int {
	for i := range f {
		if f[i].Key == key {
			return i
		}
	}
	return -1
}

// Get 返回 key 对应的值。
func (f Fields) Get(key string) (interface{}, bool) {
	if i := f.index(key); i >= 0 {
		return f[i].Value, true
	}
	return nil, false
}

// Has 判断 key 是否存在。
func (f Fields) Has(key string) bool {
	return f.index(key) >= 0
}

// String 以字符串形式读取标量值，不存在或非标量时返回空串。
func (f Fields) String(key string) string {
	v, ok := f.Get(key)
	if !ok {
		return ""
	}
	return scalarString(v)
}

// Int 读取整数值，兼容字符串形式的数字。
func (f Fields) Int(key string) int {
	v, ok := f.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	}
	return 0
}

// Set 更新已有 key（保持原位置）或追加新 key。
func (f *Fields) Set(key string, value interface{}) {
	if i := f.index(key); i >= 0 {
		(*f)[i].Value = value
		return
	}
	*f = append(*f, Field{Key: key, Value: value})
}

// SetDefault 仅在 key 不存在时写入。
func (f *Fields) SetDefault(key string, value interface{}) {
	if !f.Has(key) {
		f.Set(key, value)
	}
}

// Delete 删除 key，返回是否存在。
func (f *Fields) Delete(key string) bool {
	i := f.index(key)
	if i < 0 {
		return false
	}
	*f = append((*f)[:i], (*f)[i+1:]...)
	return true
}

// Keys 按插入顺序返回所有 key。
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for _, field := range f {
		keys = append(keys, field.Key)
	}
	return keys
}

// Clone 浅拷贝字段表（嵌套 Fields 会递归拷贝）。
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for i, field := range f {
		if nested, ok := field.Value.(Fields); ok {
			field.Value = nested.Clone()
		}
		out[i] = field
	}
	return out
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case int, int64, float64, bool:
		return fmt.Sprint(s)
	}
	return ""
}

// MarshalYAML 输出为保持顺序的 YAML mapping。
func (f Fields) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if err := f.appendTo(node); err != nil {
		return nil, err
	}
	return node, nil
}

func (f Fields) appendTo(mapping *yaml.Node) error {
	for _, field := range f {
		value, err := encodeValue(field.Value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", field.Key, err)
		}
		mapping.Content = append(mapping.Content, keyNode(field.Key), value)
	}
	return nil
}

// UnmarshalYAML 从 mapping 节点读取字段，保留键顺序。
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := decodeMapping(node)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// MarshalJSON 输出为保持顺序的 JSON 对象。
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func keyNode(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
}

func encodeValue(v interface{}) (*yaml.Node, error) {
	switch val := v.(type) {
	case Fields:
		out, err := val.MarshalYAML()
		if err != nil {
			return nil, err
		}
		return out.(*yaml.Node), nil
	case []interface{}:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range val {
			child, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, child)
		}
		return seq, nil
	case *yaml.Node:
		return val, nil
	}
	node := &yaml.Node{}
	if err := node.Encode(v); err != nil {
		return nil, err
	}
	return node, nil
}

func decodeMapping(node *yaml.Node) (Fields, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping, got %s", kindName(node.Kind))
	}
	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.Value == "<<" && k.Tag == "!!merge" {
			merged, err := decodeMerge(v)
			if err != nil {
				return nil, err
			}
			for _, field := range merged {
				out.SetDefault(field.Key, field.Value)
			}
			continue
		}
		value, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", k.Value, err)
		}
		out.Set(k.Value, value)
	}
	return out, nil
}

func decodeMerge(node *yaml.Node) (Fields, error) {
	if node.Kind == yaml.SequenceNode {
		var out Fields
		for _, item := range node.Content {
			fields, err := decodeMapping(item)
			if err != nil {
				return nil, err
			}
			for _, field := range fields {
				out.SetDefault(field.Key, field.Value)
			}
		}
		return out, nil
	}
	return decodeMapping(node)
}

func decodeValue(node *yaml.Node) (interface{}, error) {
	switch node.Kind {
	case yaml.AliasNode:
		if node.Alias == nil {
			return nil, nil
		}
		return decodeValue(node.Alias)
	case yaml.MappingNode:
		return decodeMapping(node)
	case yaml.SequenceNode:
		items := make([]interface{}, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := decodeValue(child)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.ScalarNode:
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, nil
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
