package model

import "flashflow-studio/internal/domain/entity"

// StudioInput 生成链路的统一输入
type StudioInput struct {
	Provider    string
	Model       string
	Temperature *float32
	MaxTokens   *int

	Operation string
	// Vars 模板变量
	Vars map[string]any
}

// RefineRequest 精修请求线格式
type RefineRequest struct {
	Script      *ScriptDTO           `json:"script"`
	Instruction string               `json:"instruction"`
	Target      entity.TargetContext `json:"target"`
}

// ScoreRequest 评分请求线格式
type ScoreRequest struct {
	Script *ScriptDTO           `json:"script"`
	Target entity.TargetContext `json:"target"`
}

// ImproveRequest 局部改写请求线格式
type ImproveRequest struct {
	Section string               `json:"section"`
	Text    string               `json:"text,omitempty"`
	Beat    *BeatDTO             `json:"beat,omitempty"`
	Hook    string               `json:"hook,omitempty"`
	Target  entity.TargetContext `json:"target"`
}
