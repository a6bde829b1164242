package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由。generation 挂在会调用生成能力的接口上。
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers, generation gin.HandlerFunc) {
	// 创作会话
	studio := v1.Group("/studio")
	{
		studio.GET("/instructions", h.Studio.Instructions)
		studio.GET("/quota", h.Quota.GetQuota)

		studio.POST("/sessions", h.Studio.CreateSession)
		studio.GET("/sessions/:sid", h.Studio.GetSession)
		studio.DELETE("/sessions/:sid", h.Studio.DeleteSession)
		studio.PUT("/sessions/:sid/config", h.Studio.UpdateConfig)

		// 生成类操作
		studio.POST("/sessions/:sid/generate", generation, h.Studio.Generate)
		studio.POST("/sessions/:sid/retry", generation, h.Studio.Retry)
		studio.POST("/sessions/:sid/variations", generation, h.Studio.MoreVariations)
		studio.POST("/sessions/:sid/refine", generation, h.Studio.Refine)

		// 选择与版本
		studio.PUT("/sessions/:sid/selection", h.Studio.Select)
		studio.PUT("/sessions/:sid/history/current", h.Studio.SwitchVersion)

		// 编辑
		studio.POST("/sessions/:sid/edits", h.Studio.Edit)
		studio.POST("/sessions/:sid/structure", h.Studio.Structure)
		studio.POST("/sessions/:sid/undo", h.Studio.Undo)
		studio.POST("/sessions/:sid/rescore", h.Studio.Rescore)
		studio.POST("/sessions/:sid/improve", h.Studio.Improve)
		studio.POST("/sessions/:sid/save", h.Studio.Save)
	}

	// 成品
	creatives := v1.Group("/creatives")
	{
		creatives.GET("", h.Creative.ListCreatives)
		creatives.GET("/:id", h.Creative.GetCreative)
		creatives.PUT("/:id/status", h.Creative.UpdateStatus)
		creatives.PUT("/:id/rating", h.Creative.Rate)
		creatives.POST("/:id/remix", h.Studio.RemixCreative)
	}
}
