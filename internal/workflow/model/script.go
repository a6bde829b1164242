// Package model 定义生成链路的输入输出线格式
package model

import (
	"strings"

	"flashflow-studio/internal/domain/entity"
)

// BeatDTO 分镜线格式，时间可缺省
type BeatDTO struct {
	Start        *int   `json:"start,omitempty"`
	End          *int   `json:"end,omitempty"`
	Action       string `json:"action"`
	Dialogue     string `json:"dialogue,omitempty"`
	OnScreenText string `json:"on_screen_text,omitempty"`
}

// ScoreDTO 评分线格式
type ScoreDTO struct {
	HookStrength       float64  `json:"hook_strength"`
	Humor              float64  `json:"humor"`
	Virality           float64  `json:"virality"`
	Authenticity       float64  `json:"authenticity"`
	ProductIntegration float64  `json:"product_integration"`
	AudienceFit        float64  `json:"audience_fit"`
	Clarity            float64  `json:"clarity"`
	Overall            float64  `json:"overall,omitempty"`
	Strengths          []string `json:"strengths,omitempty"`
	Improvements       []string `json:"improvements,omitempty"`
}

// ScriptDTO 一个候选脚本的线格式
type ScriptDTO struct {
	Hook       string    `json:"hook"`
	Beats      []BeatDTO `json:"beats"`
	CTALine    string    `json:"cta_line"`
	CTAOverlay string    `json:"cta_overlay,omitempty"`
	BRoll      []string  `json:"b_roll,omitempty"`
	Overlays   []string  `json:"overlays,omitempty"`
	Score      *ScoreDTO `json:"score,omitempty"`
}

// GenerateOutput 生成结果线格式；Skit 为旧版单结果
type GenerateOutput struct {
	Variations      []ScriptDTO `json:"variations,omitempty"`
	Skit            *ScriptDTO  `json:"skit,omitempty"`
	AppliedRiskTier string      `json:"applied_risk_tier,omitempty"`
	RiskScore       float64     `json:"risk_score,omitempty"`
	RiskFlags       []string    `json:"risk_flags,omitempty"`
	BudgetClamped   bool        `json:"budget_clamped,omitempty"`
}

// RefineOutput 精修结果线格式
type RefineOutput struct {
	Script *ScriptDTO `json:"script"`
}

// ImproveOutput 局部改写结果线格式
type ImproveOutput struct {
	Text string   `json:"text,omitempty"`
	Beat *BeatDTO `json:"beat,omitempty"`
}

// ToEntity 转为领域评分（已归一化）
func (s *ScoreDTO) ToEntity() *entity.Score {
	if s == nil {
		return nil
	}
	n := entity.Score{
		HookStrength:       s.HookStrength,
		Humor:              s.Humor,
		Virality:           s.Virality,
		Authenticity:       s.Authenticity,
		ProductIntegration: s.ProductIntegration,
		AudienceFit:        s.AudienceFit,
		Clarity:            s.Clarity,
		Strengths:          s.Strengths,
		Improvements:       s.Improvements,
	}.Normalize()
	return &n
}

// ToEntity 转为领域分镜；缺少时间时返回零值时间段，由调用方重排
func (b BeatDTO) ToEntity() entity.Beat {
	out := entity.Beat{
		Action:       strings.TrimSpace(b.Action),
		Dialogue:     strings.TrimSpace(b.Dialogue),
		OnScreenText: strings.TrimSpace(b.OnScreenText),
	}
	if b.Start != nil && b.End != nil {
		out.Span = entity.TimeSpan{Start: *b.Start, End: *b.End}
	}
	return out
}

// ToEntity 转为领域候选
func (s *ScriptDTO) ToEntity() *entity.Candidate {
	if s == nil {
		return nil
	}
	c := &entity.Candidate{
		Hook:       strings.TrimSpace(s.Hook),
		CTALine:    strings.TrimSpace(s.CTALine),
		CTAOverlay: strings.TrimSpace(s.CTAOverlay),
		BRoll:      append([]string(nil), s.BRoll...),
		Overlays:   append([]string(nil), s.Overlays...),
	}
	for _, b := range s.Beats {
		c.Beats = append(c.Beats, b.ToEntity())
	}
	if sc := s.Score.ToEntity(); sc != nil {
		c.Scoring = entity.Scored(*sc)
	}
	return c
}

// ToVariationSet 转为变体集合；旧版单结果返回 (nil, single)
func (o *GenerateOutput) ToVariationSet() (*entity.VariationSet, *entity.Candidate) {
	if o == nil {
		return nil, nil
	}
	if len(o.Variations) == 0 {
		return nil, o.Skit.ToEntity()
	}
	set := &entity.VariationSet{
		AppliedRiskTier: entity.RiskTier(strings.TrimSpace(o.AppliedRiskTier)),
		RiskScore:       o.RiskScore,
		RiskFlags:       append([]string(nil), o.RiskFlags...),
		Clamping:        entity.ClampFlags{BudgetClamped: o.BudgetClamped},
	}
	for i := range o.Variations {
		set.Candidates = append(set.Candidates, o.Variations[i].ToEntity())
	}
	return set, nil
}

// ScriptFromEntity 领域候选转线格式
func ScriptFromEntity(c *entity.Candidate) *ScriptDTO {
	if c == nil {
		return nil
	}
	s := &ScriptDTO{
		Hook:       c.Hook,
		CTALine:    c.CTALine,
		CTAOverlay: c.CTAOverlay,
		BRoll:      append([]string(nil), c.BRoll...),
		Overlays:   append([]string(nil), c.Overlays...),
	}
	for _, b := range c.Beats {
		s.Beats = append(s.Beats, BeatFromEntity(b))
	}
	if sc, ok := c.Scoring.Score(); ok {
		s.Score = &ScoreDTO{
			HookStrength:       sc.HookStrength,
			Humor:              sc.Humor,
			Virality:           sc.Virality,
			Authenticity:       sc.Authenticity,
			ProductIntegration: sc.ProductIntegration,
			AudienceFit:        sc.AudienceFit,
			Clarity:            sc.Clarity,
			Overall:            sc.Overall,
			Strengths:          sc.Strengths,
			Improvements:       sc.Improvements,
		}
	}
	return s
}

// BeatFromEntity 领域分镜转线格式
func BeatFromEntity(b entity.Beat) BeatDTO {
	start, end := b.Span.Start, b.Span.End
	return BeatDTO{
		Start:        &start,
		End:          &end,
		Action:       b.Action,
		Dialogue:     b.Dialogue,
		OnScreenText: b.OnScreenText,
	}
}
