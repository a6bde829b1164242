package node

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	noneBlock = "(none)"
	// MaxContextRunes 自由文本块的长度上限
	MaxContextRunes = 2000
)

// TextBlock 规整自由文本，空值渲染为 (none)
func TextBlock(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return noneBlock
	}
	return truncateRunes(s, MaxContextRunes)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return strings.TrimSpace(s[:i]) + "…"
		}
		n++
	}
	return s
}

// JSONBlock 以缩进 JSON 嵌入提示词
func JSONBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || len(b) == 0 || string(b) == "null" {
		return noneBlock
	}
	return string(b)
}
