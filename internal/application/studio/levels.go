package studio

import (
	"fmt"

	"flashflow-studio/internal/domain/entity"
)

// levelTable 离散档位与归一化数值之间的固定双射
type levelTable[K comparable] struct {
	name string
	fwd  map[K]int
	rev  map[int]K
}

func newLevelTable[K comparable](name string, pairs map[K]int) levelTable[K] {
	t := levelTable[K]{name: name, fwd: pairs, rev: make(map[int]K, len(pairs))}
	for k, v := range pairs {
		if _, dup := t.rev[v]; dup {
			panic(fmt.Sprintf("level table %s: duplicate value %d", name, v))
		}
		t.rev[v] = k
	}
	return t
}

func (t levelTable[K]) normalize(k K) (int, bool) {
	v, ok := t.fwd[k]
	return v, ok
}

func (t levelTable[K]) denormalize(v int) (K, bool) {
	k, ok := t.rev[v]
	return k, ok
}

var (
	riskTable = newLevelTable("risk_tier", map[entity.RiskTier]int{
		entity.RiskTierSafe:     20,
		entity.RiskTierBalanced: 50,
		entity.RiskTierSpicy:    80,
	})
	// 幽默度与不可预测度共用 1-5 档
	intensityTable = newLevelTable("level", map[int]int{
		1: 10, 2: 30, 3: 50, 4: 70, 5: 90,
	})
	pacingTable = newLevelTable("pacing", map[entity.Pacing]int{
		entity.PacingSlow:     25,
		entity.PacingModerate: 50,
		entity.PacingFast:     85,
	})
	hookTable = newLevelTable("hook_strength", map[entity.HookStrength]int{
		entity.HookStrengthStandard: 40,
		entity.HookStrengthStrong:   70,
		entity.HookStrengthExtreme:  95,
	})
	authenticityTable = newLevelTable("authenticity", map[entity.Authenticity]int{
		entity.AuthenticityPolished: 15,
		entity.AuthenticityBalanced: 50,
		entity.AuthenticityRaw:      85,
	})
	dialogueTable = newLevelTable("dialogue_density", map[entity.DialogueDensity]int{
		entity.DialogueMinimal:  20,
		entity.DialogueBalanced: 50,
		entity.DialogueHeavy:    80,
	})
	durationTable = newLevelTable("target_duration", map[entity.TargetDuration]int{
		entity.Duration15s: 15,
		entity.Duration30s: 30,
		entity.Duration60s: 60,
		entity.Duration90s: 90,
	})
	actorTypes = map[entity.ActorType]bool{
		entity.ActorTypeHuman: true, entity.ActorTypeVoiceover: true,
		entity.ActorTypeAIAvatar: true, entity.ActorTypeDuo: true,
	}
	contentFormats = map[entity.ContentFormat]bool{
		entity.FormatSkit: true, entity.FormatStory: true, entity.FormatReview: true,
		entity.FormatTutorial: true, entity.FormatPOV: true, entity.FormatComparison: true,
	}
)

// RiskTierFromLevel 将归一化风险值还原为尺度
func RiskTierFromLevel(v int) (entity.RiskTier, bool) {
	return riskTable.denormalize(v)
}

// normalizeConfig 将已校验的参数映射为归一化请求
func normalizeConfig(cfg entity.GenerationConfig) (*entity.GenerationRequest, error) {
	req := &entity.GenerationRequest{
		ProductID:         cfg.Target.ProductID,
		ProductName:       cfg.Target.ProductName,
		Brand:             cfg.Target.Brand,
		ActorType:         string(cfg.ActorType),
		ContentFormat:     string(cfg.ContentFormat),
		VariationCount:    cfg.VariationCount,
		CreativeDirection: cfg.CreativeDirection,
		ProductContext:    cfg.ProductContext,
		AudiencePersonaID: cfg.AudiencePersonaID,
		PresetID:          cfg.PresetID,
	}
	var ok bool
	if req.RiskLevel, ok = riskTable.normalize(cfg.RiskTier); !ok {
		return nil, invalid("risk_tier", "unknown value %q", cfg.RiskTier)
	}
	if req.HumorIntensity, ok = intensityTable.normalize(cfg.HumorLevel); !ok {
		return nil, invalid("humor_level", "must be between %d and %d", entity.MinLevel, entity.MaxLevel)
	}
	if req.Chaos, ok = intensityTable.normalize(cfg.Unpredictability); !ok {
		return nil, invalid("unpredictability", "must be between %d and %d", entity.MinLevel, entity.MaxLevel)
	}
	if req.Tempo, ok = pacingTable.normalize(cfg.Pacing); !ok {
		return nil, invalid("pacing", "unknown value %q", cfg.Pacing)
	}
	if req.HookIntensity, ok = hookTable.normalize(cfg.HookStrength); !ok {
		return nil, invalid("hook_strength", "unknown value %q", cfg.HookStrength)
	}
	if req.Rawness, ok = authenticityTable.normalize(cfg.Authenticity); !ok {
		return nil, invalid("authenticity", "unknown value %q", cfg.Authenticity)
	}
	if req.DialogueRatio, ok = dialogueTable.normalize(cfg.DialogueDensity); !ok {
		return nil, invalid("dialogue_density", "unknown value %q", cfg.DialogueDensity)
	}
	if req.DurationSeconds, ok = durationTable.normalize(cfg.TargetDuration); !ok {
		return nil, invalid("target_duration", "unknown value %q", cfg.TargetDuration)
	}
	if !actorTypes[cfg.ActorType] {
		return nil, invalid("actor_type", "unknown value %q", cfg.ActorType)
	}
	if !contentFormats[cfg.ContentFormat] {
		return nil, invalid("content_format", "unknown value %q", cfg.ContentFormat)
	}
	return req, nil
}

// Decompose 将持久化的归一化请求还原为离散参数
func Decompose(req *entity.GenerationRequest) (entity.GenerationConfig, error) {
	cfg := entity.GenerationConfig{
		Target: entity.TargetRef{
			ProductID:   req.ProductID,
			ProductName: req.ProductName,
			Brand:       req.Brand,
		},
		ActorType:         entity.ActorType(req.ActorType),
		ContentFormat:     entity.ContentFormat(req.ContentFormat),
		VariationCount:    req.VariationCount,
		CreativeDirection: req.CreativeDirection,
		ProductContext:    req.ProductContext,
		AudiencePersonaID: req.AudiencePersonaID,
		PresetID:          req.PresetID,
	}
	var ok bool
	if cfg.RiskTier, ok = riskTable.denormalize(req.RiskLevel); !ok {
		return cfg, fmt.Errorf("unmapped risk level %d", req.RiskLevel)
	}
	if cfg.HumorLevel, ok = intensityTable.denormalize(req.HumorIntensity); !ok {
		return cfg, fmt.Errorf("unmapped humor intensity %d", req.HumorIntensity)
	}
	if cfg.Unpredictability, ok = intensityTable.denormalize(req.Chaos); !ok {
		return cfg, fmt.Errorf("unmapped chaos %d", req.Chaos)
	}
	if cfg.Pacing, ok = pacingTable.denormalize(req.Tempo); !ok {
		return cfg, fmt.Errorf("unmapped tempo %d", req.Tempo)
	}
	if cfg.HookStrength, ok = hookTable.denormalize(req.HookIntensity); !ok {
		return cfg, fmt.Errorf("unmapped hook intensity %d", req.HookIntensity)
	}
	if cfg.Authenticity, ok = authenticityTable.denormalize(req.Rawness); !ok {
		return cfg, fmt.Errorf("unmapped rawness %d", req.Rawness)
	}
	if cfg.DialogueDensity, ok = dialogueTable.denormalize(req.DialogueRatio); !ok {
		return cfg, fmt.Errorf("unmapped dialogue ratio %d", req.DialogueRatio)
	}
	if cfg.TargetDuration, ok = durationTable.denormalize(req.DurationSeconds); !ok {
		return cfg, fmt.Errorf("unmapped duration %d", req.DurationSeconds)
	}
	return cfg, nil
}
