package handler

import (
	"github.com/gin-gonic/gin"

	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/domain/entity"
	"flashflow-studio/internal/domain/repository"
	"flashflow-studio/internal/interfaces/http/dto"
)

// CreativeHandler 成品处理器
type CreativeHandler struct {
	lifecycle *studio.Lifecycle
}

// NewCreativeHandler 创建成品处理器
func NewCreativeHandler(lifecycle *studio.Lifecycle) *CreativeHandler {
	return &CreativeHandler{lifecycle: lifecycle}
}

// ListCreatives 获取成品列表
// @Summary 获取成品列表
// @Tags Creatives
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Param status query string false "状态"
// @Param content_format query string false "内容形式"
// @Success 200 {object} dto.Response[dto.CreativeListResponse]
// @Router /v1/creatives [get]
func (h *CreativeHandler) ListCreatives(c *gin.Context) {
	pageReq := dto.BindPage(c)
	filter := &repository.CreativeFilter{
		Status:        entity.CreativeStatus(c.Query("status")),
		ContentFormat: entity.ContentFormat(c.Query("content_format")),
	}

	result, err := h.lifecycle.List(c.Request.Context(), currentUser(c), filter, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(c, "list creatives", err)
		return
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.ToCreativeListResponse(result.Items), meta)
}

// GetCreative 获取成品详情
// @Router /v1/creatives/{id} [get]
func (h *CreativeHandler) GetCreative(c *gin.Context) {
	creative, err := h.lifecycle.Get(c.Request.Context(), currentUser(c), dto.BindCreativeID(c))
	if err != nil {
		respondError(c, "get creative", err)
		return
	}
	dto.Success(c, dto.ToCreativeResponse(creative))
}

// UpdateStatus 切换成品状态
// @Router /v1/creatives/{id}/status [put]
func (h *CreativeHandler) UpdateStatus(c *gin.Context) {
	var req dto.CreativeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	creative, err := h.lifecycle.Transition(c.Request.Context(), currentUser(c), dto.BindCreativeID(c), entity.CreativeStatus(req.Status))
	if err != nil {
		respondError(c, "update creative status", err)
		return
	}
	dto.Success(c, dto.ToCreativeResponse(creative))
}

// Rate 评分与反馈
// @Router /v1/creatives/{id}/rating [put]
func (h *CreativeHandler) Rate(c *gin.Context) {
	var req dto.CreativeRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	creative, err := h.lifecycle.Rate(c.Request.Context(), currentUser(c), dto.BindCreativeID(c), req.Rating, req.Feedback)
	if err != nil {
		respondError(c, "rate creative", err)
		return
	}
	dto.Success(c, dto.ToCreativeResponse(creative))
}
