package models

import (
	"bytes"
	"encoding/json"
	"sort"
)

// splitExtra 取出 known 以外的字段，写回时原样保留
func splitExtra(data []byte, known map[string]bool) map[string]json.RawMessage {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra
}

// joinExtra 把未知字段按键名顺序追加到对象末尾
func joinExtra(obj []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return obj, nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.Write(bytes.TrimSuffix(bytes.TrimSpace(obj), []byte("}")))
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.WriteByte(',')
		b.Write(name)
		b.WriteByte(':')
		b.Write(extra[k])
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// cloneRaw 复制原始字节，Unmarshal 传入的切片不能被持有
func cloneRaw(data []byte) json.RawMessage {
	return append(json.RawMessage(nil), data...)
}

// jsonFields 结构体 json 标签集合
func jsonFields(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
