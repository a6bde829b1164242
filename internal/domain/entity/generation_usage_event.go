package entity

import "time"

// GenerationUsageEvent 一次成功调用生成能力的流水
type GenerationUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID           string    `json:"user_id" gorm:"type:varchar(64);index;not null"`
	SessionID        string    `json:"session_id" gorm:"type:varchar(64);index"`
	Operation        string    `json:"operation" gorm:"type:varchar(32);not null"`
	Credits          int       `json:"credits" gorm:"not null;default:0"`
	Variations       int       `json:"variations" gorm:"not null;default:0"`
	Provider         string    `json:"provider" gorm:"type:varchar(32)"`
	Model            string    `json:"model" gorm:"type:varchar(64)"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (GenerationUsageEvent) TableName() string {
	return "generation_usage_events"
}
