package dto

import (
	"fmt"

	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/service"
)

// ConfigRequest 创建会话或替换参数。未传的字段取默认值。
type ConfigRequest struct {
	Config entity.GenerationConfig `json:"config"`
}

// NewConfigRequest 以默认参数为底的请求
func NewConfigRequest() ConfigRequest {
	return ConfigRequest{Config: entity.DefaultGenerationConfig()}
}

// IndexRequest 选择变体或切换版本
type IndexRequest struct {
	Index *int `json:"index" binding:"required"`
}

// RefineRequest 精修请求，instruction 可为预设指令 ID
type RefineRequest struct {
	Instruction string `json:"instruction" binding:"required"`
}

// BeatInput 分镜内容，时间由服务端重排
type BeatInput struct {
	Action       string `json:"action"`
	Dialogue     string `json:"dialogue,omitempty"`
	OnScreenText string `json:"on_screen_text,omitempty"`
}

// ToEntity 转换为分镜
func (b *BeatInput) ToEntity() *entity.Beat {
	if b == nil {
		return nil
	}
	return &entity.Beat{Action: b.Action, Dialogue: b.Dialogue, OnScreenText: b.OnScreenText}
}

// EditRequest 编辑一个区块
type EditRequest struct {
	Section string     `json:"section" binding:"required"`
	Index   int        `json:"index"`
	Text    string     `json:"text"`
	Beat    *BeatInput `json:"beat,omitempty"`
}

// SectionID 转为会话区块标识
func (r *EditRequest) SectionID() studio.SectionID {
	return studio.SectionID{Kind: service.SectionKind(r.Section), Index: r.Index}
}

// Value 转为区块内容
func (r *EditRequest) Value() studio.SectionValue {
	return studio.SectionValue{Text: r.Text, Beat: r.Beat.ToEntity()}
}

// 结构编辑操作
const (
	OpMoveBeat      = "move_beat"
	OpDeleteBeat    = "delete_beat"
	OpAddBeat       = "add_beat"
	OpAddBRoll      = "add_broll"
	OpDeleteBRoll   = "delete_broll"
	OpAddOverlay    = "add_overlay"
	OpDeleteOverlay = "delete_overlay"
)

// StructureRequest 增删分镜、调整顺序、增删 B-roll 与字幕
type StructureRequest struct {
	Op        string     `json:"op" binding:"required,oneof=move_beat delete_beat add_beat add_broll delete_broll add_overlay delete_overlay"`
	Index     int        `json:"index"`
	Direction string     `json:"direction,omitempty" binding:"omitempty,oneof=up down"`
	Text      string     `json:"text,omitempty"`
	Beat      *BeatInput `json:"beat,omitempty"`
}

// Apply 在会话上执行结构编辑
func (r *StructureRequest) Apply(s *studio.Session) error {
	switch r.Op {
	case OpMoveBeat:
		dir := studio.DirectionDown
		if r.Direction == "up" {
			dir = studio.DirectionUp
		}
		return s.MoveBeat(r.Index, dir)
	case OpDeleteBeat:
		return s.DeleteBeat(r.Index)
	case OpAddBeat:
		b := r.Beat.ToEntity()
		if b == nil {
			b = &entity.Beat{Action: r.Text}
		}
		return s.AddBeat(*b)
	case OpAddBRoll:
		return s.AddBRoll(r.Text)
	case OpDeleteBRoll:
		return s.DeleteBRoll(r.Index)
	case OpAddOverlay:
		return s.AddOverlay(r.Text)
	case OpDeleteOverlay:
		return s.DeleteOverlay(r.Index)
	default:
		return fmt.Errorf("unknown structure op %q", r.Op)
	}
}

// ImproveRequest 让生成能力改写一个区块
type ImproveRequest struct {
	Section string `json:"section" binding:"required"`
	Index   int    `json:"index"`
}

// SectionID 转为会话区块标识
func (r *ImproveRequest) SectionID() studio.SectionID {
	return studio.SectionID{Kind: service.SectionKind(r.Section), Index: r.Index}
}

// ImproveResponse 改写结果
type ImproveResponse struct {
	Section string       `json:"section"`
	Index   int          `json:"index"`
	Text    string       `json:"text,omitempty"`
	Beat    *entity.Beat `json:"beat,omitempty"`
}

// SaveRequest 保存为草稿
type SaveRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// UndoResponse 撤销结果
type UndoResponse struct {
	Undone  bool                `json:"undone"`
	Session *studio.SessionView `json:"session"`
}

// QuotaResponse 当前用户额度
type QuotaResponse struct {
	Remaining int   `json:"remaining"`
	Unlimited bool  `json:"unlimited"`
	UsedToday int64 `json:"used_today"`
}

// InstructionsResponse 预设精修指令
type InstructionsResponse struct {
	Instructions map[string]string `json:"instructions"`
}
