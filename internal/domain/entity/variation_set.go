package entity

import "sort"

// ClampFlags 生成时被动收紧参数的标记
type ClampFlags struct {
	// BudgetClamped 上游因额度预算压缩了输出
	BudgetClamped bool `json:"budget_clamped"`
	// PresetRangeClamped 参数被限制在预设允许范围内
	PresetRangeClamped bool `json:"preset_range_clamped"`
}

// Merge 合并两组标记
func (f ClampFlags) Merge(o ClampFlags) ClampFlags {
	return ClampFlags{
		BudgetClamped:      f.BudgetClamped || o.BudgetClamped,
		PresetRangeClamped: f.PresetRangeClamped || o.PresetRangeClamped,
	}
}

// VariationSet 一次生成返回的候选集合（按分数从高到低）
type VariationSet struct {
	Candidates      []*Candidate `json:"candidates"`
	AppliedRiskTier RiskTier     `json:"applied_risk_tier"`
	RiskScore       float64      `json:"risk_score"`
	RiskFlags       []string     `json:"risk_flags,omitempty"`
	Clamping        ClampFlags   `json:"clamping"`
	// Legacy 上游返回旧版单结果格式时为 true，此时仅有一个候选
	Legacy bool `json:"legacy,omitempty"`
}

// Len 候选数量
func (s *VariationSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candidates)
}

// At 返回指定下标的候选，越界返回 nil
func (s *VariationSet) At(i int) *Candidate {
	if s == nil || i < 0 || i >= len(s.Candidates) {
		return nil
	}
	return s.Candidates[i]
}

// Clone 深拷贝
func (s *VariationSet) Clone() *VariationSet {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Candidates = make([]*Candidate, len(s.Candidates))
	for i, c := range s.Candidates {
		cp.Candidates[i] = c.Clone()
	}
	cp.RiskFlags = append([]string(nil), s.RiskFlags...)
	return &cp
}

// SortBestFirst 按总分稳定降序，未评分排最后
func (s *VariationSet) SortBestFirst() {
	sort.SliceStable(s.Candidates, func(i, j int) bool {
		return s.Candidates[i].Scoring.Overall() > s.Candidates[j].Scoring.Overall()
	})
}
