package studio

import (
	"time"

	"flashflow-studio/internal/domain/entity"
)

// VersionKind 版本来源
type VersionKind string

const (
	VersionGeneration VersionKind = "generation"
	VersionRefinement VersionKind = "refinement"
	VersionExpansion  VersionKind = "expansion"
	// VersionRemix 从已保存成品载入的起始版本
	VersionRemix VersionKind = "remix"
)

// VersionEntry 一次成功生成、精修或追加的结果
type VersionEntry struct {
	Seq  int         `json:"seq"`
	Kind VersionKind `json:"kind"`
	// Set 该版本的变体集合；精修版本只含精修后的一个候选
	Set *entity.VariationSet `json:"set"`
	// Instruction 产生该版本的精修指令
	Instruction string `json:"instruction,omitempty"`
	// Selected 版本创建时选中的变体下标
	Selected  int       `json:"selected"`
	CreatedAt time.Time `json:"created_at"`
}

// Refined 精修版本返回精修得到的候选
func (e *VersionEntry) Refined() *entity.Candidate {
	if e.Kind != VersionRefinement {
		return nil
	}
	return e.Set.At(0)
}

// History 单线、只追加的版本历史，current 指针可任意移动
type History struct {
	entries []*VersionEntry
	current int
	nextSeq int
	now     func() time.Time
}

// NewHistory 创建空历史
func NewHistory() *History {
	return &History{current: -1, nextSeq: 1, now: time.Now}
}

// Append 追加一个版本并把 current 指向它
func (h *History) Append(kind VersionKind, set *entity.VariationSet, instruction string, selected int) *VersionEntry {
	e := &VersionEntry{
		Seq:         h.nextSeq,
		Kind:        kind,
		Set:         set.Clone(),
		Instruction: instruction,
		Selected:    selected,
		CreatedAt:   h.now(),
	}
	h.nextSeq++
	h.entries = append(h.entries, e)
	h.current = len(h.entries) - 1
	return e
}

// SwitchTo 只移动 current 指针，不删除任何版本
func (h *History) SwitchTo(i int) (*VersionEntry, error) {
	if i < 0 || i >= len(h.entries) {
		return nil, invalid("version", "index %d out of range [0,%d)", i, len(h.entries))
	}
	h.current = i
	return h.entries[i], nil
}

// Current 当前版本，历史为空返回 nil
func (h *History) Current() *VersionEntry {
	if h.current < 0 {
		return nil
	}
	return h.entries[h.current]
}

// CurrentIndex 当前下标，历史为空为 -1
func (h *History) CurrentIndex() int { return h.current }

// Len 版本数量
func (h *History) Len() int { return len(h.entries) }

// Entries 返回全部版本（只读）
func (h *History) Entries() []*VersionEntry {
	return append([]*VersionEntry(nil), h.entries...)
}
