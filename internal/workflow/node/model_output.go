package node

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject 从模型回复中取出第一个完整的 JSON 对象。
// 会去掉 markdown 代码围栏和前后的说明文字，找不到时原样返回去空白后的内容。
func ExtractJSONObject(s string) string {
	raw := stripFence(strings.TrimSpace(s))
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(raw[start:]))
		var v json.RawMessage
		if err := dec.Decode(&v); err == nil {
			return string(v)
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return raw
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 语言标记
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
