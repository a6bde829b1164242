package entity

import (
	"time"
)

// ProductionJobStatus 制作任务状态
type ProductionJobStatus string

const (
	ProductionJobPending   ProductionJobStatus = "pending"
	ProductionJobBriefed   ProductionJobStatus = "briefed"
	ProductionJobFailed    ProductionJobStatus = "failed"
	ProductionJobDelivered ProductionJobStatus = "delivered"
	ProductionJobCancelled ProductionJobStatus = "cancelled"
)

// ProductionTurnaround 制作任务默认交付周期
const ProductionTurnaround = 48 * time.Hour

// BriefSLA 任务创建后出简报的时限
const BriefSLA = 4 * time.Hour

// OpenProductionJobStatuses 尚未交付也未取消的状态
var OpenProductionJobStatuses = []ProductionJobStatus{
	ProductionJobPending,
	ProductionJobBriefed,
	ProductionJobFailed,
}

// ProductionJob 成品审核通过后交给剪辑的制作任务
type ProductionJob struct {
	ID           string              `json:"id" gorm:"type:uuid;primaryKey"`
	CreativeID   string              `json:"creative_id" gorm:"type:uuid;uniqueIndex;not null"`
	OwnerID      string              `json:"owner_id" gorm:"type:varchar(64);index;not null"`
	Status       ProductionJobStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	Brief        string              `json:"brief,omitempty" gorm:"type:text"`
	ErrorMessage string              `json:"error_message,omitempty" gorm:"type:text"`
	RetryCount   int                 `json:"retry_count" gorm:"not null;default:0"`
	DueAt        time.Time           `json:"due_at"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	BriefedAt    *time.Time          `json:"briefed_at,omitempty"`
	DeliveredAt  *time.Time          `json:"delivered_at,omitempty"`
}

// TableName 表名
func (ProductionJob) TableName() string {
	return "production_jobs"
}

// NewProductionJob 创建待出简报的制作任务
func NewProductionJob(id, creativeID, ownerID string, now time.Time) *ProductionJob {
	return &ProductionJob{
		ID:         id,
		CreativeID: creativeID,
		OwnerID:    ownerID,
		Status:     ProductionJobPending,
		DueAt:      now.Add(ProductionTurnaround),
		CreatedAt:  now,
	}
}

// MarkBriefed 写入剪辑简报
func (j *ProductionJob) MarkBriefed(brief string, now time.Time) {
	j.Status = ProductionJobBriefed
	j.Brief = brief
	j.ErrorMessage = ""
	j.BriefedAt = &now
}

// MarkDelivered 交付完成
func (j *ProductionJob) MarkDelivered(now time.Time) {
	j.Status = ProductionJobDelivered
	j.DeliveredAt = &now
}

// Cancel 成品归档时取消任务
func (j *ProductionJob) Cancel() {
	j.Status = ProductionJobCancelled
}

// IsOpen 任务仍在制作中
func (j *ProductionJob) IsOpen() bool {
	for _, st := range OpenProductionJobStatuses {
		if j.Status == st {
			return true
		}
	}
	return false
}

// SLABreach 返回任务在 now 时刻违反的时限，未违反返回空串
func (j *ProductionJob) SLABreach(now time.Time) string {
	if !j.IsOpen() {
		return ""
	}
	if now.After(j.DueAt) {
		return "past due"
	}
	if j.Status != ProductionJobBriefed && now.Sub(j.CreatedAt) > BriefSLA {
		return "not briefed within 4h"
	}
	return ""
}

// Fail 任务失败
func (j *ProductionJob) Fail(errMsg string) {
	j.Status = ProductionJobFailed
	j.ErrorMessage = errMsg
}

// Retry 重试任务
func (j *ProductionJob) Retry() {
	j.RetryCount++
	j.Status = ProductionJobPending
	j.ErrorMessage = ""
}

// CanRetry 检查是否可以重试
func (j *ProductionJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == ProductionJobFailed
}
