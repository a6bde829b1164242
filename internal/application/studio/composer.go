package studio

import (
	"strings"
	"unicode/utf8"

	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/entity"
)

// minProductNameLen 自由填写商品名的最短长度
const minProductNameLen = 3

// Preset 风格预设，限定风险尺度与幽默度范围
type Preset struct {
	ID       string
	Name     string
	MinRisk  entity.RiskTier
	MaxRisk  entity.RiskTier
	MinHumor int
	MaxHumor int
}

// PresetsFromConfig 从配置构建预设
func PresetsFromConfig(cfgs []config.PresetConfig) []Preset {
	out := make([]Preset, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Preset{
			ID:       c.ID,
			Name:     c.Name,
			MinRisk:  entity.RiskTier(c.MinRisk),
			MaxRisk:  entity.RiskTier(c.MaxRisk),
			MinHumor: c.MinHumor,
			MaxHumor: c.MaxHumor,
		})
	}
	return out
}

// Composer 将创作参数组装为归一化生成请求
type Composer struct {
	presets map[string]Preset
}

// NewComposer 创建请求组装器
func NewComposer(presets []Preset) *Composer {
	m := make(map[string]Preset, len(presets))
	for _, p := range presets {
		m[p.ID] = p
	}
	return &Composer{presets: m}
}

// Preset 查询预设
func (c *Composer) Preset(id string) (Preset, bool) {
	p, ok := c.presets[id]
	return p, ok
}

// Validate 本地同步校验，失败返回 *ValidationError
func (c *Composer) Validate(cfg entity.GenerationConfig) error {
	hasID := strings.TrimSpace(cfg.Target.ProductID) != ""
	name := strings.TrimSpace(cfg.Target.ProductName)
	switch {
	case hasID && name != "":
		return invalid("target", "set either product_id or product_name, not both")
	case !hasID && name == "":
		return invalid("target", "a product_id or product_name is required")
	case !hasID && utf8.RuneCountInString(name) < minProductNameLen:
		return invalid("product_name", "must be at least %d characters", minProductNameLen)
	}
	if cfg.VariationCount < entity.MinVariations || cfg.VariationCount > entity.MaxVariations {
		return invalid("variation_count", "must be between %d and %d", entity.MinVariations, entity.MaxVariations)
	}
	if cfg.PresetID != "" {
		if _, ok := c.presets[cfg.PresetID]; !ok {
			return invalid("preset_id", "unknown preset %q", cfg.PresetID)
		}
	}
	_, err := normalizeConfig(cfg)
	return err
}

// Compose 校验、按预设收紧，然后归一化
func (c *Composer) Compose(cfg entity.GenerationConfig) (*entity.GenerationRequest, error) {
	if err := c.Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Target.ProductID = strings.TrimSpace(cfg.Target.ProductID)
	cfg.Target.ProductName = strings.TrimSpace(cfg.Target.ProductName)
	cfg.Target.Brand = strings.TrimSpace(cfg.Target.Brand)

	clamped := false
	if p, ok := c.presets[cfg.PresetID]; ok {
		cfg, clamped = clampToPreset(cfg, p)
	}
	req, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	req.PresetRangeClamped = clamped
	return req, nil
}

// clampToPreset 把风险尺度和幽默度限制到预设范围内
func clampToPreset(cfg entity.GenerationConfig, p Preset) (entity.GenerationConfig, bool) {
	clamped := false
	if p.MaxRisk.Valid() && cfg.RiskTier.Rank() > p.MaxRisk.Rank() {
		cfg.RiskTier = p.MaxRisk
		clamped = true
	}
	if p.MinRisk.Valid() && cfg.RiskTier.Rank() < p.MinRisk.Rank() {
		cfg.RiskTier = p.MinRisk
		clamped = true
	}
	if p.MaxHumor > 0 && cfg.HumorLevel > p.MaxHumor {
		cfg.HumorLevel = p.MaxHumor
		clamped = true
	}
	if p.MinHumor > 0 && cfg.HumorLevel < p.MinHumor {
		cfg.HumorLevel = p.MinHumor
		clamped = true
	}
	return cfg, clamped
}
