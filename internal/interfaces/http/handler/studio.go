package handler

import (
	"github.com/gin-gonic/gin"

	"flashflow-studio/internal/application/studio"
	"flashflow-studio/internal/interfaces/http/dto"
	"flashflow-studio/pkg/logger"
)

// StudioHandler 创作会话处理器
type StudioHandler struct {
	manager *studio.SessionManager
}

// NewStudioHandler 创建创作会话处理器
func NewStudioHandler(manager *studio.SessionManager) *StudioHandler {
	return &StudioHandler{manager: manager}
}

// session 取出当前用户的会话并把会话 ID 注入日志上下文
func (h *StudioHandler) session(c *gin.Context) (*studio.Session, bool) {
	sid := dto.BindSessionID(c)
	s, err := h.manager.Get(currentUser(c), sid)
	if err != nil {
		respondError(c, "get session", err)
		return nil, false
	}
	ctx := logger.WithContext(c.Request.Context(), logger.SessionIDKey, sid)
	c.Request = c.Request.WithContext(ctx)
	return s, true
}

// CreateSession 创建会话
// @Summary 创建创作会话
// @Tags Studio
// @Accept json
// @Produce json
// @Param body body dto.ConfigRequest true "生成参数"
// @Success 201 {object} dto.Response[studio.SessionView]
// @Router /v1/studio/sessions [post]
func (h *StudioHandler) CreateSession(c *gin.Context) {
	req := dto.NewConfigRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	s, err := h.manager.Create(c.Request.Context(), currentUser(c), req.Config)
	if err != nil {
		respondError(c, "create session", err)
		return
	}
	dto.Created(c, s.Snapshot())
}

// RemixCreative 以已保存成品为起点开新会话
// @Summary 从成品开新会话
// @Tags Studio
// @Produce json
// @Param id path string true "成品 ID"
// @Success 201 {object} dto.Response[studio.SessionView]
// @Router /v1/creatives/{id}/remix [post]
func (h *StudioHandler) RemixCreative(c *gin.Context) {
	s, err := h.manager.CreateFromCreative(c.Request.Context(), currentUser(c), dto.BindCreativeID(c))
	if err != nil {
		respondError(c, "remix creative", err)
		return
	}
	dto.Created(c, s.Snapshot())
}

// GetSession 会话快照
// @Router /v1/studio/sessions/{sid} [get]
func (h *StudioHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	dto.Success(c, s.Snapshot())
}

// DeleteSession 丢弃会话
// @Router /v1/studio/sessions/{sid} [delete]
func (h *StudioHandler) DeleteSession(c *gin.Context) {
	if err := h.manager.Close(c.Request.Context(), currentUser(c), dto.BindSessionID(c)); err != nil {
		respondError(c, "close session", err)
		return
	}
	dto.NoContent(c)
}

// UpdateConfig 替换生成参数，已有内容保留
// @Router /v1/studio/sessions/{sid}/config [put]
func (h *StudioHandler) UpdateConfig(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	req := dto.ConfigRequest{Config: s.Config()}
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := s.SetConfig(req.Config); err != nil {
		respondError(c, "update config", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Generate 按当前参数生成一组变体
// @Router /v1/studio/sessions/{sid}/generate [post]
func (h *StudioHandler) Generate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Generate(c.Request.Context()); err != nil {
		respondError(c, "generate", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Retry 重放上次失败的请求
// @Router /v1/studio/sessions/{sid}/retry [post]
func (h *StudioHandler) Retry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Retry(c.Request.Context()); err != nil {
		respondError(c, "retry", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// MoreVariations 在当前版本上追加变体
// @Router /v1/studio/sessions/{sid}/variations [post]
func (h *StudioHandler) MoreVariations(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.RequestMoreVariations(c.Request.Context()); err != nil {
		respondError(c, "request more variations", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Select 选择变体
// @Router /v1/studio/sessions/{sid}/selection [put]
func (h *StudioHandler) Select(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := s.SelectVariation(*req.Index); err != nil {
		respondError(c, "select variation", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Refine 按指令精修
// @Router /v1/studio/sessions/{sid}/refine [post]
func (h *StudioHandler) Refine(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.RefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := s.Refine(c.Request.Context(), req.Instruction); err != nil {
		respondError(c, "refine", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// SwitchVersion 切换到历史版本
// @Router /v1/studio/sessions/{sid}/history/current [put]
func (h *StudioHandler) SwitchVersion(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := s.SwitchVersion(*req.Index); err != nil {
		respondError(c, "switch version", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Edit 编辑一个区块
// @Router /v1/studio/sessions/{sid}/edits [post]
func (h *StudioHandler) Edit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := s.ApplyEdit(req.SectionID(), req.Value()); err != nil {
		respondError(c, "edit", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Structure 结构编辑
// @Router /v1/studio/sessions/{sid}/structure [post]
func (h *StudioHandler) Structure(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.StructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := req.Apply(s); err != nil {
		respondError(c, "structure edit", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Undo 撤销最近一次编辑
// @Router /v1/studio/sessions/{sid}/undo [post]
func (h *StudioHandler) Undo(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	undone := s.Undo()
	dto.Success(c, &dto.UndoResponse{Undone: undone, Session: s.Snapshot()})
}

// Rescore 重新评分
// @Router /v1/studio/sessions/{sid}/rescore [post]
func (h *StudioHandler) Rescore(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.Rescore(c.Request.Context()); err != nil {
		respondError(c, "rescore", err)
		return
	}
	dto.Success(c, s.Snapshot())
}

// Improve 改写一个区块
// @Router /v1/studio/sessions/{sid}/improve [post]
func (h *StudioHandler) Improve(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.ImproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	val, err := s.ImproveSection(c.Request.Context(), req.SectionID())
	if err != nil {
		respondError(c, "improve section", err)
		return
	}
	dto.Success(c, &dto.ImproveResponse{Section: req.Section, Index: req.Index, Text: val.Text, Beat: val.Beat})
}

// Save 保存当前内容为草稿
// @Router /v1/studio/sessions/{sid}/save [post]
func (h *StudioHandler) Save(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	creative, err := s.Save(c.Request.Context(), req.Title)
	if err != nil {
		respondError(c, "save creative", err)
		return
	}
	dto.Created(c, dto.ToCreativeResponse(creative))
}

// Instructions 预置精修指令
// @Router /v1/studio/instructions [get]
func (h *StudioHandler) Instructions(c *gin.Context) {
	dto.Success(c, &dto.InstructionsResponse{Instructions: studio.CannedInstructions()})
}
