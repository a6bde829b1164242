package dto

import (
	"encoding/json"
	"time"

	"flashflow-studio/internal/domain/entity"
)

// CreativeResponse 成品详情
type CreativeResponse struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Status          entity.CreativeStatus `json:"status"`
	ContentFormat   entity.ContentFormat  `json:"content_format,omitempty"`
	ProductName     string                `json:"product_name,omitempty"`
	Brand           string                `json:"brand,omitempty"`
	Candidate       json.RawMessage       `json:"candidate,omitempty"`
	Config          json.RawMessage       `json:"config,omitempty"`
	EditPatch       json.RawMessage       `json:"edit_patch,omitempty"`
	OverallScore    *float64              `json:"overall_score,omitempty"`
	RiskFlags       []string              `json:"risk_flags,omitempty"`
	Rating          *int                  `json:"rating,omitempty"`
	Feedback        string                `json:"feedback,omitempty"`
	ProductionJobID *string               `json:"production_job_id,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// CreativeSummary 列表项，不含脚本正文
type CreativeSummary struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Status          entity.CreativeStatus `json:"status"`
	ContentFormat   entity.ContentFormat  `json:"content_format,omitempty"`
	ProductName     string                `json:"product_name,omitempty"`
	OverallScore    *float64              `json:"overall_score,omitempty"`
	Rating          *int                  `json:"rating,omitempty"`
	ProductionJobID *string               `json:"production_job_id,omitempty"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// CreativeListResponse 成品列表
type CreativeListResponse struct {
	Creatives []*CreativeSummary `json:"creatives"`
}

// ToCreativeResponse 转换成品详情
func ToCreativeResponse(c *entity.SavedCreative) *CreativeResponse {
	if c == nil {
		return nil
	}
	resp := &CreativeResponse{
		ID:              c.ID,
		Title:           c.Title,
		Status:          c.Status,
		ContentFormat:   c.ContentFormat,
		ProductName:     c.ProductName,
		Brand:           c.Brand,
		Candidate:       json.RawMessage(c.Candidate),
		Config:          json.RawMessage(c.Config),
		OverallScore:    c.OverallScore,
		RiskFlags:       []string(c.RiskFlags),
		Rating:          c.Rating,
		Feedback:        c.Feedback,
		ProductionJobID: c.ProductionJobID,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if len(c.EditPatch) > 0 && string(c.EditPatch) != "null" {
		resp.EditPatch = json.RawMessage(c.EditPatch)
	}
	return resp
}

// ToCreativeListResponse 转换成品列表
func ToCreativeListResponse(items []*entity.SavedCreative) *CreativeListResponse {
	out := make([]*CreativeSummary, 0, len(items))
	for _, c := range items {
		out = append(out, &CreativeSummary{
			ID:              c.ID,
			Title:           c.Title,
			Status:          c.Status,
			ContentFormat:   c.ContentFormat,
			ProductName:     c.ProductName,
			OverallScore:    c.OverallScore,
			Rating:          c.Rating,
			ProductionJobID: c.ProductionJobID,
			UpdatedAt:       c.UpdatedAt,
		})
	}
	return &CreativeListResponse{Creatives: out}
}

// CreativeStatusRequest 切换状态
type CreativeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreativeRatingRequest 评分与反馈
type CreativeRatingRequest struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback" binding:"max=2000"`
}
