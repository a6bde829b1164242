// Package entity 定义领域实体
package entity

// RiskTier 内容尺度
type RiskTier string

const (
	RiskTierSafe     RiskTier = "safe"
	RiskTierBalanced RiskTier = "balanced"
	RiskTierSpicy    RiskTier = "spicy"
)

// Rank 返回尺度序号，越大越激进
func (t RiskTier) Rank() int {
	switch t {
	case RiskTierSafe:
		return 0
	case RiskTierBalanced:
		return 1
	case RiskTierSpicy:
		return 2
	default:
		return -1
	}
}

// Valid 是否为合法取值
func (t RiskTier) Valid() bool { return t.Rank() >= 0 }

// Pacing 节奏
type Pacing string

const (
	PacingSlow     Pacing = "slow"
	PacingModerate Pacing = "moderate"
	PacingFast     Pacing = "fast"
)

// HookStrength 开场钩子强度
type HookStrength string

const (
	HookStrengthStandard HookStrength = "standard"
	HookStrengthStrong   HookStrength = "strong"
	HookStrengthExtreme  HookStrength = "extreme"
)

// Authenticity 真实感
type Authenticity string

const (
	AuthenticityPolished Authenticity = "polished"
	AuthenticityBalanced Authenticity = "balanced"
	AuthenticityRaw      Authenticity = "raw"
)

// ActorType 出镜类型
type ActorType string

const (
	ActorTypeHuman     ActorType = "human"
	ActorTypeVoiceover ActorType = "voiceover"
	ActorTypeAIAvatar  ActorType = "ai_avatar"
	ActorTypeDuo       ActorType = "duo"
)

// TargetDuration 目标时长
type TargetDuration string

const (
	Duration15s TargetDuration = "15s"
	Duration30s TargetDuration = "30s"
	Duration60s TargetDuration = "60s"
	Duration90s TargetDuration = "90s"
)

// ContentFormat 内容形式
type ContentFormat string

const (
	FormatSkit       ContentFormat = "skit"
	FormatStory      ContentFormat = "story"
	FormatReview     ContentFormat = "review"
	FormatTutorial   ContentFormat = "tutorial"
	FormatPOV        ContentFormat = "pov"
	FormatComparison ContentFormat = "comparison"
)

// DialogueDensity 台词密度
type DialogueDensity string

const (
	DialogueMinimal  DialogueDensity = "minimal"
	DialogueBalanced DialogueDensity = "balanced"
	DialogueHeavy    DialogueDensity = "heavy"
)

const (
	// MinVariations 单次生成的最少变体数
	MinVariations = 1
	// MaxVariations 单次生成及追加后的变体上限
	MaxVariations = 5
	// MinLevel 档位下限（幽默度、不可预测度）
	MinLevel = 1
	// MaxLevel 档位上限
	MaxLevel = 5
)

// TargetRef 生成目标：已有商品或自由填写的名称+品牌，二者必居其一
type TargetRef struct {
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Brand       string `json:"brand,omitempty"`
}

// IsProduct 是否引用已有商品
func (t TargetRef) IsProduct() bool { return t.ProductID != "" }

// DisplayName 用于展示和提示词的名称
func (t TargetRef) DisplayName() string {
	if t.ProductName != "" {
		return t.ProductName
	}
	return t.ProductID
}

// GenerationConfig 一次生成请求的全部创作参数
type GenerationConfig struct {
	Target            TargetRef       `json:"target"`
	RiskTier          RiskTier        `json:"risk_tier"`
	HumorLevel        int             `json:"humor_level"`
	Unpredictability  int             `json:"unpredictability"`
	Pacing            Pacing          `json:"pacing"`
	HookStrength      HookStrength    `json:"hook_strength"`
	Authenticity      Authenticity    `json:"authenticity"`
	ActorType         ActorType       `json:"actor_type"`
	TargetDuration    TargetDuration  `json:"target_duration"`
	ContentFormat     ContentFormat   `json:"content_format"`
	DialogueDensity   DialogueDensity `json:"dialogue_density"`
	VariationCount    int             `json:"variation_count"`
	CreativeDirection string          `json:"creative_direction,omitempty"`
	ProductContext    string          `json:"product_context,omitempty"`
	AudiencePersonaID string          `json:"audience_persona_id,omitempty"`
	PresetID          string          `json:"preset_id,omitempty"`
}

// DefaultGenerationConfig 返回默认参数，目标需由调用方填写
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		RiskTier:         RiskTierBalanced,
		HumorLevel:       3,
		Unpredictability: 3,
		Pacing:           PacingModerate,
		HookStrength:     HookStrengthStrong,
		Authenticity:     AuthenticityBalanced,
		ActorType:        ActorTypeHuman,
		TargetDuration:   Duration30s,
		ContentFormat:    FormatSkit,
		DialogueDensity:  DialogueBalanced,
		VariationCount:   1,
	}
}

// GenerationRequest 发往生成能力的归一化请求，强度类参数统一为 0-100
type GenerationRequest struct {
	ProductID         string `json:"product_id,omitempty"`
	ProductName       string `json:"product_name,omitempty"`
	Brand             string `json:"brand,omitempty"`
	RiskLevel         int    `json:"risk_level"`
	HumorIntensity    int    `json:"humor_intensity"`
	Chaos             int    `json:"chaos"`
	Tempo             int    `json:"tempo"`
	HookIntensity     int    `json:"hook_intensity"`
	Rawness           int    `json:"rawness"`
	DialogueRatio     int    `json:"dialogue_ratio"`
	DurationSeconds   int    `json:"duration_seconds"`
	ActorType         string `json:"actor_type"`
	ContentFormat     string `json:"content_format"`
	VariationCount    int    `json:"variation_count"`
	CreativeDirection string `json:"creative_direction,omitempty"`
	ProductContext    string `json:"product_context,omitempty"`
	AudiencePersonaID string `json:"audience_persona_id,omitempty"`
	PresetID          string `json:"preset_id,omitempty"`

	// PresetRangeClamped 组装时是否因预设范围收紧了参数
	PresetRangeClamped bool `json:"preset_range_clamped,omitempty"`
}

// TargetContext 精修、评分、局部改写时随附的目标信息
type TargetContext struct {
	ProductName   string `json:"product_name,omitempty"`
	Brand         string `json:"brand,omitempty"`
	ContentFormat string `json:"content_format,omitempty"`
	Audience      string `json:"audience_persona_id,omitempty"`
}

// TargetContext 从参数中提取目标信息
func (c GenerationConfig) TargetContext() TargetContext {
	return TargetContext{
		ProductName:   c.Target.DisplayName(),
		Brand:         c.Target.Brand,
		ContentFormat: string(c.ContentFormat),
		Audience:      c.AudiencePersonaID,
	}
}

// TargetContext 从请求中提取目标信息
func (r *GenerationRequest) TargetContext() TargetContext {
	name := r.ProductName
	if name == "" {
		name = r.ProductID
	}
	return TargetContext{
		ProductName:   name,
		Brand:         r.Brand,
		ContentFormat: r.ContentFormat,
		Audience:      r.AudiencePersonaID,
	}
}

// Clone 复制请求
func (r *GenerationRequest) Clone() *GenerationRequest {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
