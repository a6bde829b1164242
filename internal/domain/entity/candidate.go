// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultBeatSeconds 每个分镜的固定时长
const DefaultBeatSeconds = 5

// TimeSpan 分镜时间段，单位秒
type TimeSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// String 格式化为 0:00-0:05
func (s TimeSpan) String() string {
	return fmt.Sprintf("%d:%02d-%d:%02d", s.Start/60, s.Start%60, s.End/60, s.End%60)
}

// Beat 分镜
type Beat struct {
	Span         TimeSpan `json:"span"`
	Action       string   `json:"action"`
	Dialogue     string   `json:"dialogue,omitempty"`
	OnScreenText string   `json:"on_screen_text,omitempty"`
}

// Score 质量评分，各子项取值 [0,10]
type Score struct {
	HookStrength       float64  `json:"hook_strength"`
	Humor              float64  `json:"humor"`
	Virality           float64  `json:"virality"`
	Authenticity       float64  `json:"authenticity"`
	ProductIntegration float64  `json:"product_integration"`
	AudienceFit        float64  `json:"audience_fit"`
	Clarity            float64  `json:"clarity"`
	Overall            float64  `json:"overall"`
	Strengths          []string `json:"strengths,omitempty"`
	Improvements       []string `json:"improvements,omitempty"`
}

// Normalize 将子项约束到 [0,10] 并重新计算总分（均值，保留一位小数）
func (s Score) Normalize() Score {
	subs := []*float64{
		&s.HookStrength, &s.Humor, &s.Virality, &s.Authenticity,
		&s.ProductIntegration, &s.AudienceFit, &s.Clarity,
	}
	var sum float64
	for _, v := range subs {
		*v = math.Max(0, math.Min(10, *v))
		sum += *v
	}
	s.Overall = math.Round(sum/float64(len(subs))*10) / 10
	s.Strengths = append([]string(nil), s.Strengths...)
	s.Improvements = append([]string(nil), s.Improvements...)
	return s
}

// ScoringStatus 评分状态标签
type ScoringStatus string

const (
	ScoringScored   ScoringStatus = "scored"
	ScoringUnscored ScoringStatus = "unscored"
)

// Scoring 评分的标签联合：Scored(Score) 或 Unscored
// 零值为 Unscored
type Scoring struct {
	score *Score
}

// Scored 构造已评分状态
func Scored(s Score) Scoring {
	n := s.Normalize()
	return Scoring{score: &n}
}

// Unscored 构造待评分状态
func Unscored() Scoring { return Scoring{} }

// IsScored 是否已评分
func (s Scoring) IsScored() bool { return s.score != nil }

// Status 返回标签
func (s Scoring) Status() ScoringStatus {
	if s.score == nil {
		return ScoringUnscored
	}
	return ScoringScored
}

// Score 返回评分及是否存在
func (s Scoring) Score() (Score, bool) {
	if s.score == nil {
		return Score{}, false
	}
	return *s.score, true
}

// Overall 返回总分，未评分为 -1
func (s Scoring) Overall() float64 {
	if s.score == nil {
		return -1
	}
	return s.score.Overall
}

type scoringJSON struct {
	Status ScoringStatus `json:"status"`
	Score  *Score        `json:"score,omitempty"`
}

// MarshalJSON 序列化为 {"status": "...", "score": {...}}
func (s Scoring) MarshalJSON() ([]byte, error) {
	return json.Marshal(scoringJSON{Status: s.Status(), Score: s.score})
}

// UnmarshalJSON 反序列化
func (s *Scoring) UnmarshalJSON(data []byte) error {
	var raw scoringJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Status {
	case ScoringScored:
		if raw.Score == nil {
			return fmt.Errorf("scored status without score")
		}
		*s = Scored(*raw.Score)
	case ScoringUnscored, "":
		*s = Unscored()
	default:
		return fmt.Errorf("unknown scoring status %q", raw.Status)
	}
	return nil
}

// Candidate 一个生成的创意单元
type Candidate struct {
	Hook       string   `json:"hook"`
	Beats      []Beat   `json:"beats"`
	CTALine    string   `json:"cta_line"`
	CTAOverlay string   `json:"cta_overlay"`
	BRoll      []string `json:"b_roll"`
	Overlays   []string `json:"overlays"`
	Scoring    Scoring  `json:"scoring"`
}

// Clone 深拷贝
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Beats = append([]Beat(nil), c.Beats...)
	cp.BRoll = append([]string(nil), c.BRoll...)
	cp.Overlays = append([]string(nil), c.Overlays...)
	if sc, ok := c.Scoring.Score(); ok {
		cp.Scoring = Scored(sc)
	}
	return &cp
}

// Retime 按序号重新计算分镜时间：从 0 开始、连续、每段 beatSeconds 秒
func (c *Candidate) Retime(beatSeconds int) {
	if beatSeconds <= 0 {
		beatSeconds = DefaultBeatSeconds
	}
	for i := range c.Beats {
		c.Beats[i].Span = TimeSpan{Start: i * beatSeconds, End: (i + 1) * beatSeconds}
	}
}

// DurationSeconds 返回最后一个分镜的结束时间
func (c *Candidate) DurationSeconds() int {
	if len(c.Beats) == 0 {
		return 0
	}
	return c.Beats[len(c.Beats)-1].Span.End
}

// Validate 校验候选内容
func (c *Candidate) Validate() error {
	if c == nil {
		return fmt.Errorf("candidate is nil")
	}
	if len(c.Beats) == 0 {
		return fmt.Errorf("candidate has no beats")
	}
	return nil
}
