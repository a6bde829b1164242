package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"flashflow-studio/internal/config"
	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
	"flashflow-studio/internal/infrastructure/llm"
	wfchain "flashflow-studio/internal/workflow/chain"
	wfmodel "flashflow-studio/internal/workflow/model"
	wfnode "flashflow-studio/internal/workflow/node"
)

// LLMCapability 直接调用大模型实现生成能力
type LLMCapability struct {
	chain    *wfchain.StudioChain
	provider string
}

var _ service.GenerationCapability = (*LLMCapability)(nil)

// NewLLMCapability 创建基于 Eino 的生成能力
func NewLLMCapability(factory *llm.EinoFactory, cfg *config.CapabilityConfig) *LLMCapability {
	return &LLMCapability{
		chain:    wfchain.NewStudioChain(factory),
		provider: factory.Resolve(strings.TrimSpace(cfg.Provider)),
	}
}

// Generate 生成变体集合
func (c *LLMCapability) Generate(ctx context.Context, req *entity.GenerationRequest) (*service.GenerateResult, error) {
	name := req.ProductName
	if name == "" {
		name = req.ProductID
	}
	vars := map[string]any{
		"product_name":       name,
		"brand":              wfnode.TextBlock(req.Brand),
		"content_format":     req.ContentFormat,
		"actor_type":         req.ActorType,
		"duration_seconds":   req.DurationSeconds,
		"variation_count":    req.VariationCount,
		"risk_level":         req.RiskLevel,
		"humor_intensity":    req.HumorIntensity,
		"chaos":              req.Chaos,
		"tempo":              req.Tempo,
		"hook_intensity":     req.HookIntensity,
		"rawness":            req.Rawness,
		"dialogue_ratio":     req.DialogueRatio,
		"audience":           wfnode.TextBlock(req.AudiencePersonaID),
		"preset":             wfnode.TextBlock(req.PresetID),
		"product_context":    wfnode.TextBlock(req.ProductContext),
		"creative_direction": wfnode.TextBlock(req.CreativeDirection),
	}

	raw, usage, err := c.invoke(ctx, wfchain.OpGenerate, vars)
	if err != nil {
		return nil, err
	}

	var out wfmodel.GenerateOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, malformed("generate", err)
	}
	set, single := out.ToVariationSet()
	if set == nil && single == nil {
		// 模型偶尔直接返回单个脚本
		var direct wfmodel.ScriptDTO
		if err := json.Unmarshal([]byte(raw), &direct); err == nil && len(direct.Beats) > 0 {
			single = direct.ToEntity()
		}
	}
	if set == nil && single == nil {
		return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "model returned no variations"}
	}
	return &service.GenerateResult{Set: set, Single: single, Usage: usage}, nil
}

// Refine 按指令改写
func (c *LLMCapability) Refine(ctx context.Context, cand *entity.Candidate, instruction string, target entity.TargetContext) (*service.RefineResult, error) {
	vars := targetVars(target)
	vars["instruction"] = strings.TrimSpace(instruction)
	vars["script"] = wfnode.JSONBlock(wfmodel.ScriptFromEntity(cand))

	raw, usage, err := c.invoke(ctx, wfchain.OpRefine, vars)
	if err != nil {
		return nil, err
	}

	var out wfmodel.RefineOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, malformed("refine", err)
	}
	if out.Script == nil {
		var direct wfmodel.ScriptDTO
		if err := json.Unmarshal([]byte(raw), &direct); err != nil || len(direct.Beats) == 0 {
			return nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "model returned no script"}
		}
		out.Script = &direct
	}
	return &service.RefineResult{Candidate: out.Script.ToEntity(), Usage: usage}, nil
}

// Score 评分
func (c *LLMCapability) Score(ctx context.Context, cand *entity.Candidate, target entity.TargetContext) (*entity.Score, error) {
	vars := targetVars(target)
	vars["script"] = wfnode.JSONBlock(wfmodel.ScriptFromEntity(cand))

	raw, _, err := c.invoke(ctx, wfchain.OpScore, vars)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Score *wfmodel.ScoreDTO `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && wrapped.Score != nil {
		return wrapped.Score.ToEntity(), nil
	}
	var out wfmodel.ScoreDTO
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, malformed("score", err)
	}
	return out.ToEntity(), nil
}

// ImproveSection 局部改写
func (c *LLMCapability) ImproveSection(ctx context.Context, in service.SectionImproveInput) (*service.SectionImproveResult, error) {
	vars := targetVars(in.Context)
	vars["section"] = string(in.Kind)
	vars["hook"] = wfnode.TextBlock(in.Hook)
	if in.Beat != nil {
		vars["current"] = wfnode.JSONBlock(wfmodel.BeatFromEntity(*in.Beat))
	} else {
		vars["current"] = wfnode.TextBlock(in.Text)
	}

	raw, _, err := c.invoke(ctx, wfchain.OpImprove, vars)
	if err != nil {
		return nil, err
	}

	var out wfmodel.ImproveOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, malformed("improve_section", err)
	}
	return improveResult(in.Kind, &out)
}

// invoke 运行链路，返回截取后的 JSON 文本和本次用量
func (c *LLMCapability) invoke(ctx context.Context, op string, vars map[string]any) (string, *service.CallUsage, error) {
	ctx, span := tracer.Start(ctx, "capability.LLMCapability."+op)
	defer span.End()

	ctx, sink := service.WithUsageSink(ctx)
	msg, err := c.chain.Invoke(ctx, &wfmodel.StudioInput{
		Provider:  c.provider,
		Operation: op,
		Vars:      vars,
	})
	if err != nil {
		span.RecordError(err)
		return "", nil, &service.CapabilityError{
			Kind:    wfnode.ClassifyLLMError(err),
			Message: fmt.Sprintf("%s failed", op),
			Err:     err,
		}
	}

	raw := wfnode.ExtractJSONObject(msg.Content)
	if raw == "" {
		return "", nil, &service.CapabilityError{Kind: service.KindGenerationFailure, Message: "empty model output"}
	}
	return raw, usageFrom(sink, msg, c.provider), nil
}

// usageFrom 优先取回调汇总的用量，未触发回调时退回响应元数据
func usageFrom(sink *service.UsageSink, msg *schema.Message, provider string) *service.CallUsage {
	u := sink.Usage(provider)
	if u.PromptTokens+u.CompletionTokens > 0 {
		return u
	}
	if msg != nil && msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
		u.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
	}
	return u
}

func targetVars(t entity.TargetContext) map[string]any {
	return map[string]any{
		"product_name":   wfnode.TextBlock(t.ProductName),
		"brand":          wfnode.TextBlock(t.Brand),
		"content_format": wfnode.TextBlock(t.ContentFormat),
		"audience":       wfnode.TextBlock(t.Audience),
	}
}
