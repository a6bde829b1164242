package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// CreativeStatus 成品状态
type CreativeStatus string

const (
	CreativeStatusDraft    CreativeStatus = "draft"
	CreativeStatusApproved CreativeStatus = "approved"
	CreativeStatusProduced CreativeStatus = "produced"
	CreativeStatusPosted   CreativeStatus = "posted"
	CreativeStatusArchived CreativeStatus = "archived"
)

// Rank 返回状态在主线上的序号
func (s CreativeStatus) Rank() int {
	switch s {
	case CreativeStatusDraft:
		return 0
	case CreativeStatusApproved:
		return 1
	case CreativeStatusProduced:
		return 2
	case CreativeStatusPosted:
		return 3
	case CreativeStatusArchived:
		return 4
	default:
		return -1
	}
}

// Valid 是否为合法状态
func (s CreativeStatus) Valid() bool { return s.Rank() >= 0 }

// CanTransitionTo 状态只能前进（允许跳级）；任何状态可归档；归档后可去往任意状态
func (s CreativeStatus) CanTransitionTo(next CreativeStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == CreativeStatusArchived || next == CreativeStatusArchived {
		return true
	}
	return next.Rank() >= s.Rank()
}

// SavedCreative 保存后的成品
type SavedCreative struct {
	ID              string         `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID         string         `json:"owner_id" gorm:"type:varchar(64);index;not null"`
	Title           string         `json:"title" gorm:"type:varchar(255);not null"`
	Status          CreativeStatus `json:"status" gorm:"type:varchar(16);index;not null;default:draft"`
	ContentFormat   ContentFormat  `json:"content_format" gorm:"type:varchar(32)"`
	ProductName     string         `json:"product_name" gorm:"type:varchar(255)"`
	Brand           string         `json:"brand" gorm:"type:varchar(255)"`
	Candidate       datatypes.JSON `json:"candidate" gorm:"type:jsonb;not null"`
	Config          datatypes.JSON `json:"config" gorm:"type:jsonb;not null"`
	EditPatch       datatypes.JSON `json:"edit_patch,omitempty" gorm:"type:jsonb"`
	OverallScore    *float64       `json:"overall_score,omitempty"`
	RiskFlags       pq.StringArray `json:"risk_flags,omitempty" gorm:"type:text[]"`
	Rating          *int           `json:"rating,omitempty"`
	Feedback        string         `json:"feedback,omitempty" gorm:"type:text"`
	ProductionJobID *string        `json:"production_job_id,omitempty" gorm:"type:uuid"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName 表名
func (SavedCreative) TableName() string {
	return "saved_creatives"
}

// NewSavedCreative 以草稿状态创建成品
func NewSavedCreative(id, ownerID, title string, cand *Candidate, cfg GenerationConfig) (*SavedCreative, error) {
	candJSON, err := json.Marshal(cand)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidate: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	sc := &SavedCreative{
		ID:            id,
		OwnerID:       ownerID,
		Title:         title,
		Status:        CreativeStatusDraft,
		ContentFormat: cfg.ContentFormat,
		ProductName:   cfg.Target.DisplayName(),
		Brand:         cfg.Target.Brand,
		Candidate:     datatypes.JSON(candJSON),
		Config:        datatypes.JSON(cfgJSON),
	}
	if score, ok := cand.Scoring.Score(); ok {
		overall := score.Overall
		sc.OverallScore = &overall
	}
	return sc, nil
}

// DecodeCandidate 解析保存的候选
func (c *SavedCreative) DecodeCandidate() (*Candidate, error) {
	var cand Candidate
	if err := json.Unmarshal(c.Candidate, &cand); err != nil {
		return nil, fmt.Errorf("failed to decode candidate: %w", err)
	}
	return &cand, nil
}

// DecodeConfig 解析保存的生成参数
func (c *SavedCreative) DecodeConfig() (*GenerationConfig, error) {
	var cfg GenerationConfig
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// HasHandoff 是否已创建制作任务
func (c *SavedCreative) HasHandoff() bool {
	return c.ProductionJobID != nil && *c.ProductionJobID != ""
}

// SetRating 设置评分（1-5）与反馈
func (c *SavedCreative) SetRating(rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}
	c.Rating = &rating
	c.Feedback = feedback
	return nil
}
